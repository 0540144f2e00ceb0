package workflow

import "loom/internal/queue"

// ConfigureStages binds handlers to the lanes and rebuilds the lane tables.
func (m *Manager) ConfigureStages(set StageSet) {
	foreground := &laneState{kind: laneForeground, name: "foreground", notificationsEnabled: true}
	background := &laneState{kind: laneBackground, name: "background", notificationsEnabled: false}

	if set.Narrator != nil {
		foreground.stages = append(foreground.stages, pipelineStage{
			name:             "narrator",
			handler:          set.Narrator,
			startStatus:      queue.StatusPending,
			processingStatus: queue.StatusNarrating,
			doneStatus:       queue.StatusNarrated,
		})
	}
	if set.Illustrator != nil {
		foreground.stages = append(foreground.stages, pipelineStage{
			name:             "illustrator",
			handler:          set.Illustrator,
			startStatus:      queue.StatusNarrated,
			processingStatus: queue.StatusIllustrating,
			doneStatus:       queue.StatusIllustrated,
		})
	}
	// Composing, rendering, and publishing run in the background lane so the
	// provider-bound foreground stages of the next item can proceed while a
	// render occupies the CPU.
	if set.Composer != nil {
		background.stages = append(background.stages, pipelineStage{
			name:             "composer",
			handler:          set.Composer,
			startStatus:      queue.StatusIllustrated,
			processingStatus: queue.StatusComposing,
			doneStatus:       queue.StatusComposed,
		})
	}
	if set.Renderer != nil {
		background.stages = append(background.stages, pipelineStage{
			name:             "renderer",
			handler:          set.Renderer,
			startStatus:      queue.StatusComposed,
			processingStatus: queue.StatusRendering,
			doneStatus:       queue.StatusRendered,
		})
	}
	if set.Publisher != nil {
		background.stages = append(background.stages, pipelineStage{
			name:             "publisher",
			handler:          set.Publisher,
			startStatus:      queue.StatusRendered,
			processingStatus: queue.StatusPublishing,
			doneStatus:       queue.StatusCompleted,
		})
	}

	lanes := make(map[laneKind]*laneState)
	order := make([]laneKind, 0, 2)

	if len(foreground.stages) > 0 {
		foreground.finalize()
		lanes[foreground.kind] = foreground
		order = append(order, foreground.kind)
	}
	if len(background.stages) > 0 {
		background.finalize()
		lanes[background.kind] = background
		order = append(order, background.kind)
	}

	for _, lane := range lanes {
		if lane == nil {
			continue
		}
		lane.runReclaimer = len(lane.processingStatuses) > 0
	}

	m.mu.Lock()
	m.lanes = lanes
	m.laneOrder = order
	m.mu.Unlock()
}
