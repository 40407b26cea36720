package main

import (
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/xhad/glov/internal/types"
)

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionClearOnFinish(),
	)
}

func stageLabel(stage string) string {
	switch stage {
	case types.StageValidate:
		return "Validating URL..."
	case types.StageSize:
		return "Checking document size..."
	case types.StageDownload:
		return "Downloading PDF..."
	case types.StageExtract:
		return "Extracting text..."
	case types.StageChunk:
		return "Splitting into chunks..."
	case types.StageIndex:
		return "Embedding and storing chunks..."
	case types.StageSearch:
		return "Searching..."
	default:
		return stage
	}
}
