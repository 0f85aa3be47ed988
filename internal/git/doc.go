// Package git acquires job sources into the local workspace with go-git.
//
// A source is cloned once into <workspace>/<job id>. Later acquisitions of
// the same job fetch origin and hard-reset the working tree to the remote
// branch, so the workspace always mirrors the remote head.
package git
