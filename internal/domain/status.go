package domain

// ProcessStatus is the externally observable lifecycle state of a Process
// Record. Transitions are restricted to the table below; failed is terminal.
type ProcessStatus string

const (
	StatusUploaded        ProcessStatus = "uploaded"
	StatusProcessingMedia ProcessStatus = "processing_media"
	StatusCompressing     ProcessStatus = "compressing"
	StatusUploading       ProcessStatus = "uploading"
	StatusUploadComplete  ProcessStatus = "upload_complete"
	StatusCompleted       ProcessStatus = "completed"
	StatusFailed          ProcessStatus = "failed"
)

var statusTransitions = map[ProcessStatus][]ProcessStatus{
	StatusUploaded:        {StatusProcessingMedia, StatusFailed},
	StatusProcessingMedia: {StatusCompressing, StatusUploading, StatusFailed},
	StatusCompressing:     {StatusUploading, StatusFailed},
	StatusUploading:       {StatusUploadComplete, StatusFailed},
	StatusUploadComplete:  {StatusCompleted, StatusFailed},
	StatusCompleted:       {},
	StatusFailed:          {},
}

var statusOrder = []ProcessStatus{
	StatusUploaded,
	StatusProcessingMedia,
	StatusCompressing,
	StatusUploading,
	StatusUploadComplete,
	StatusCompleted,
	StatusFailed,
}

func (s ProcessStatus) CanTransition(to ProcessStatus) bool {
	for _, next := range statusTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s ProcessStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// BlockedSources returns every status that has no transition to target.
// Guarded status writes pass the result as their disallowed set, so the
// transition table above is the single authority on what may move where.
func BlockedSources(target ProcessStatus) []ProcessStatus {
	blocked := make([]ProcessStatus, 0, len(statusOrder))
	for _, from := range statusOrder {
		if !from.CanTransition(target) {
			blocked = append(blocked, from)
		}
	}
	return blocked
}

// Progress checkpoints reserved by the pipeline coordinator. Individual
// stages interpolate within their own band; the storage layer guards the
// percent so it never decreases.
const (
	ProgressPipelineStart = 5
	ProgressPreUpload     = 80
	ProgressUploading     = 92
	ProgressUploaded      = 95
	ProgressCompleted     = 100
)
