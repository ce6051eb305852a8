package domain

import "testing"

func newProcessingJob() *ProcessingJob {
	return &ProcessingJob{
		ID:              "job-1",
		Filename:        "paper.pdf",
		Status:          JobStatusUploaded,
		OCRStatus:       StepStatusPending,
		MetadataStatus:  StepStatusPending,
		EmbeddingStatus: StepStatusPending,
		ChunkingStatus:  StepStatusPending,
	}
}

func TestSetStepStatus(t *testing.T) {
	j := newProcessingJob()

	j.SetStepStatus(StepOCR, StepStatusRunning, "")
	if j.OCRStatus != StepStatusRunning {
		t.Errorf("OCRStatus = %q, want running", j.OCRStatus)
	}
	if j.OCRCompletedAt != nil {
		t.Error("running step should not carry a completion timestamp")
	}

	j.SetStepStatus(StepOCR, StepStatusCompleted, "")
	if j.OCRStatus != StepStatusCompleted {
		t.Errorf("OCRStatus = %q, want completed", j.OCRStatus)
	}
	if j.OCRCompletedAt == nil {
		t.Error("completed step should carry a completion timestamp")
	}

	j.SetStepStatus(StepMetadata, StepStatusFailed, "extractor unavailable")
	if j.MetadataStatus != StepStatusFailed {
		t.Errorf("MetadataStatus = %q, want failed", j.MetadataStatus)
	}
	if j.MetadataError == nil || *j.MetadataError != "extractor unavailable" {
		t.Errorf("MetadataError = %v, want extractor unavailable", j.MetadataError)
	}

	// Unknown steps are ignored.
	j.SetStepStatus(StepName("translation"), StepStatusCompleted, "")
}

func TestResetStepCascade(t *testing.T) {
	testCases := []struct {
		name  string
		reset StepName
		want  map[StepName]StepStatus
	}{
		{
			name:  "ocr resets metadata and embedding",
			reset: StepOCR,
			want: map[StepName]StepStatus{
				StepOCR:       StepStatusPending,
				StepMetadata:  StepStatusPending,
				StepEmbedding: StepStatusPending,
				StepChunking:  StepStatusCompleted,
			},
		},
		{
			name:  "metadata resets embedding only",
			reset: StepMetadata,
			want: map[StepName]StepStatus{
				StepOCR:       StepStatusCompleted,
				StepMetadata:  StepStatusPending,
				StepEmbedding: StepStatusPending,
				StepChunking:  StepStatusCompleted,
			},
		},
		{
			name:  "embedding resets nothing else",
			reset: StepEmbedding,
			want: map[StepName]StepStatus{
				StepOCR:       StepStatusCompleted,
				StepMetadata:  StepStatusCompleted,
				StepEmbedding: StepStatusPending,
				StepChunking:  StepStatusCompleted,
			},
		},
		{
			name:  "chunking is independent",
			reset: StepChunking,
			want: map[StepName]StepStatus{
				StepOCR:       StepStatusCompleted,
				StepMetadata:  StepStatusCompleted,
				StepEmbedding: StepStatusCompleted,
				StepChunking:  StepStatusPending,
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			j := newProcessingJob()
			for _, step := range Steps {
				j.SetStepStatus(step, StepStatusCompleted, "")
			}
			j.ProgressPercentage = 100

			j.ResetStep(tc.reset)

			for step, want := range tc.want {
				if got := j.StepState(step); got != want {
					t.Errorf("%s = %q, want %q", step, got, want)
				}
			}
			if j.ProgressPercentage != 0 {
				t.Errorf("ProgressPercentage = %d, want 0", j.ProgressPercentage)
			}
		})
	}
}

func TestResetStepClearsErrorAndTimestamp(t *testing.T) {
	j := newProcessingJob()
	j.SetStepStatus(StepEmbedding, StepStatusFailed, "dimension mismatch")
	j.SetStepStatus(StepOCR, StepStatusCompleted, "")

	j.ResetStep(StepOCR)

	if j.OCRCompletedAt != nil {
		t.Error("reset should clear the completion timestamp")
	}
	if j.EmbeddingError != nil {
		t.Error("cascaded reset should clear the step error")
	}
	if j.EmbeddingStatus != StepStatusPending {
		t.Errorf("EmbeddingStatus = %q, want pending", j.EmbeddingStatus)
	}
}

func TestIsChunkingOnly(t *testing.T) {
	j := newProcessingJob()
	if j.IsChunkingOnly() {
		t.Error("fresh job should not be chunking-only")
	}

	for _, step := range []StepName{StepOCR, StepMetadata, StepEmbedding} {
		j.SetStepStatus(step, StepStatusCompleted, "")
	}
	if j.IsChunkingOnly() {
		t.Error("job without current_step=chunking should not be chunking-only")
	}

	step := string(StepChunking)
	j.CurrentStep = &step
	if !j.IsChunkingOnly() {
		t.Error("expected chunking-only job")
	}
}

func TestMarkCompletedAndFailed(t *testing.T) {
	j := newProcessingJob()
	j.MarkCompleted()
	if j.Status != JobStatusCompleted || j.ProgressPercentage != 100 || j.CompletedAt == nil {
		t.Errorf("MarkCompleted left job in %q/%d", j.Status, j.ProgressPercentage)
	}

	j = newProcessingJob()
	j.MarkFailed("ocr timed out")
	if j.Status != JobStatusFailed || j.CompletedAt == nil {
		t.Errorf("MarkFailed left job in %q", j.Status)
	}
	if j.ErrorMessage == nil || *j.ErrorMessage != "ocr timed out" {
		t.Errorf("ErrorMessage = %v", j.ErrorMessage)
	}
}

func TestStepInfo(t *testing.T) {
	j := newProcessingJob()
	j.SetStepStatus(StepOCR, StepStatusCompleted, "")
	j.SetStepStatus(StepChunking, StepStatusFailed, "no usable chunks")

	info := j.StepInfo()
	if len(info) != len(Steps) {
		t.Fatalf("StepInfo returned %d entries, want %d", len(info), len(Steps))
	}
	if info[StepOCR].Status != StepStatusCompleted || info[StepOCR].CompletedAt == nil {
		t.Error("ocr detail does not reflect completion")
	}
	if info[StepChunking].Error == nil || *info[StepChunking].Error != "no usable chunks" {
		t.Error("chunking detail does not carry the step error")
	}
	if info[StepMetadata].Status != StepStatusPending {
		t.Errorf("metadata detail = %q, want pending", info[StepMetadata].Status)
	}
}

func TestValidStep(t *testing.T) {
	for _, step := range Steps {
		if !ValidStep(string(step)) {
			t.Errorf("ValidStep(%q) = false", step)
		}
	}
	if ValidStep("upload") {
		t.Error("ValidStep accepted an unknown step")
	}
}
