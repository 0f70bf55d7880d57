package workflow

import (
	"distill/internal/bundle"
	"distill/internal/queue"
	"distill/internal/stage"
)

// StageSet bundles the concrete workflow handlers the manager orchestrates.
type StageSet struct {
	Download   stage.Handler
	Transcribe stage.Handler
	Analyze    stage.Handler
}

type pipelineStage struct {
	name             string
	handler          stage.Handler
	startStatus      queue.Status
	processingStatus queue.Status
	doneStatus       queue.Status
	doneState        bundle.State
}

// ConfigureStages registers the concrete stage handlers the workflow will
// run. Handlers left nil are skipped, so partial pipelines (for example a
// transcription-only rerun) remain expressible.
func (m *Manager) ConfigureStages(set StageSet) {
	stages := make([]pipelineStage, 0, 3)
	if set.Download != nil {
		stages = append(stages, pipelineStage{
			name:             "download",
			handler:          set.Download,
			startStatus:      queue.StatusPending,
			processingStatus: queue.StatusDownloading,
			doneStatus:       queue.StatusDownloaded,
			doneState:        bundle.StateDownloaded,
		})
	}
	if set.Transcribe != nil {
		stages = append(stages, pipelineStage{
			name:             "transcribe",
			handler:          set.Transcribe,
			startStatus:      queue.StatusDownloaded,
			processingStatus: queue.StatusTranscribing,
			doneStatus:       queue.StatusTranscribed,
			doneState:        bundle.StateTranscribed,
		})
	}
	if set.Analyze != nil {
		stages = append(stages, pipelineStage{
			name:             "analyze",
			handler:          set.Analyze,
			startStatus:      queue.StatusTranscribed,
			processingStatus: queue.StatusAnalyzing,
			doneStatus:       queue.StatusCompleted,
			doneState:        bundle.StateAnalyzed,
		})
	}

	stageByStart := make(map[queue.Status]pipelineStage, len(stages))
	statusOrder := make([]queue.Status, 0, len(stages))
	for _, stg := range stages {
		stageByStart[stg.startStatus] = stg
		statusOrder = append(statusOrder, stg.startStatus)
	}

	m.mu.Lock()
	m.stages = stages
	m.stageByStart = stageByStart
	m.statusOrder = statusOrder
	m.mu.Unlock()
}

func (m *Manager) stageForStatus(status queue.Status) (pipelineStage, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stg, ok := m.stageByStart[status]
	return stg, ok
}
