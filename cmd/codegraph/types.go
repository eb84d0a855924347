package main

import (
	"time"

	"github.com/jward/codegraph"
)

// CLIResult is the top-level JSON envelope for all commands.
type CLIResult struct {
	Command    string `json:"command"`
	Results    any    `json:"results"`
	TotalCount *int   `json:"total_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CLIRun is a JSON-friendly run report.
type CLIRun struct {
	ID                string     `json:"id"`
	RepositoryID      string     `json:"repository_id"`
	State             string     `json:"state"`
	LastPass          int        `json:"last_pass"`
	Full              bool       `json:"full"`
	Error             string     `json:"error,omitempty"`
	Retryable         bool       `json:"retryable,omitempty"`
	FilesTotal        int        `json:"files_total"`
	FilesIndexed      int        `json:"files_indexed"`
	FilesFailed       int        `json:"files_failed"`
	EdgesWritten      int        `json:"edges_written"`
	ReferencesDropped int        `json:"references_dropped"`
	FailedFiles       []string   `json:"failed_files,omitempty"`
	Warnings          []string   `json:"warnings,omitempty"`
	StartedAt         time.Time  `json:"started_at"`
	FinishedAt        *time.Time `json:"finished_at,omitempty"`
}

func runToCLI(r *codegraph.RunReport) CLIRun {
	return CLIRun{
		ID:                r.ID,
		RepositoryID:      r.RepositoryID,
		State:             r.State,
		LastPass:          r.LastPass,
		Full:              r.Full,
		Error:             r.Error,
		Retryable:         r.Retryable,
		FilesTotal:        r.FilesTotal,
		FilesIndexed:      r.FilesIndexed,
		FilesFailed:       r.FilesFailed,
		EdgesWritten:      r.EdgesWritten,
		ReferencesDropped: r.ReferencesDropped,
		FailedFiles:       r.FailedFiles,
		Warnings:          r.Warnings,
		StartedAt:         r.StartedAt,
		FinishedAt:        r.FinishedAt,
	}
}
