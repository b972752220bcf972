package ui

import (
	"github.com/desertthunder/tdx/internal/models"
	"github.com/desertthunder/tdx/internal/tasks"
)

type searchResultsMsg struct {
	query  string
	tracks []models.TrackDescriptor
	err    error
}

type progressUpdateMsg tasks.ProgressUpdate

type fetchCompleteMsg struct {
	result *tasks.FetchResult
	err    error
}
