// Package domain re-exports the persisted model types so callers can write
// types.Document instead of importing each subpackage.
package domain

import (
	"github.com/yungbote/docbridge-backend/internal/domain/documents"
	"github.com/yungbote/docbridge-backend/internal/domain/jobs"
)

type Document = documents.Document
type DocumentChunk = documents.DocumentChunk
type QuizQuestion = documents.QuizQuestion
type ProcessingLogEntry = documents.ProcessingLogEntry
type Segment = documents.Segment
type Keyword = documents.Keyword

type JobRun = jobs.JobRun

const (
	DocumentStatusUploaded   = documents.StatusUploaded
	DocumentStatusProcessing = documents.StatusProcessing
	DocumentStatusReady      = documents.StatusReady
	DocumentStatusFailed     = documents.StatusFailed
)

const (
	LogStarted   = documents.LogStarted
	LogProgress  = documents.LogProgress
	LogCompleted = documents.LogCompleted
	LogFailed    = documents.LogFailed
)

const (
	JobStatusQueued    = jobs.JobStatusQueued
	JobStatusRunning   = jobs.JobStatusRunning
	JobStatusSucceeded = jobs.JobStatusSucceeded
	JobStatusFailed    = jobs.JobStatusFailed
	JobStatusCanceled  = jobs.JobStatusCanceled

	JobTypeDocumentIngest = jobs.JobTypeDocumentIngest
	JobTypeQuizRegenerate = jobs.JobTypeQuizRegenerate
)

func PtrInt(v int) *int           { return documents.PtrInt(v) }
func PtrFloat(v float64) *float64 { return documents.PtrFloat(v) }
