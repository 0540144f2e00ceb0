package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const segmentScriptPrompt = `You split narration scripts into visual scenes for a slideshow video.
Rules:
- Every scene must be a contiguous, verbatim excerpt of the script. Do not
  rewrite, reorder, or drop any words.
- Prefer scene breaks at paragraph and sentence boundaries.
- Each scene should run roughly one to three sentences.
- For each scene after the first, pick the transition that enters it:
  one of "cut", "fade", "fade_to_black", "dissolve", "wipe_left", "wipe_right".
Respond with JSON only: {"scenes":[{"text":"...","transition":"..."}]}`

const describeScenePrompt = `You write image generation prompts for scenes of a narrated video.
Given the narration text of one scene, respond with a single vivid visual
description of what should be on screen. Describe a concrete still image:
subject, setting, mood, lighting. Do not include any text or captions in the
image. Keep visual continuity with the previous scene description when one is
given.
Respond with JSON only: {"description":"..."}`

const captionBoundariesPrompt = `You choose caption grouping points for a narrated video.
Given the numbered words of the narration, pick the word indexes where a new
caption group should start so that each group is a natural phrase of roughly
three to seven words. Indexes are zero-based positions into the word list and
must be in increasing order.
Respond with JSON only: {"boundaries":[5,9,...]}`

// SceneDraft is one scene proposed by the planner: a verbatim excerpt of the
// script plus the transition entering it.
type SceneDraft struct {
	Text       string `json:"text"`
	Transition string `json:"transition"`
}

// SegmentScript asks the model to split a narration script into scenes.
// Scene texts are verbatim excerpts; callers verify coverage against the
// original script before trusting the split.
func (c *Client) SegmentScript(ctx context.Context, script string) ([]SceneDraft, error) {
	script = strings.TrimSpace(script)
	if script == "" {
		return nil, errors.New("llm segment: script required")
	}
	content, err := c.CompleteJSON(ctx, segmentScriptPrompt, script)
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Scenes []SceneDraft `json:"scenes"`
	}
	if err := DecodeLLMJSON(content, &parsed); err != nil {
		return nil, fmt.Errorf("llm segment: parse payload: %w", err)
	}
	scenes := make([]SceneDraft, 0, len(parsed.Scenes))
	for _, scene := range parsed.Scenes {
		scene.Text = strings.TrimSpace(scene.Text)
		if scene.Text == "" {
			continue
		}
		scene.Transition = strings.ToLower(strings.TrimSpace(scene.Transition))
		scenes = append(scenes, scene)
	}
	if len(scenes) == 0 {
		return nil, errors.New("llm segment: model returned no scenes")
	}
	scenes[0].Transition = ""
	return scenes, nil
}

// DescribeScene asks the model for an image prompt covering one scene.
// previous carries the prior scene's description for visual continuity and
// may be empty for the first scene.
func (c *Client) DescribeScene(ctx context.Context, sceneText, previous string) (string, error) {
	sceneText = strings.TrimSpace(sceneText)
	if sceneText == "" {
		return "", errors.New("llm describe: scene text required")
	}
	var sb strings.Builder
	if previous = strings.TrimSpace(previous); previous != "" {
		sb.WriteString("Previous scene description: ")
		sb.WriteString(previous)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Scene narration: ")
	sb.WriteString(sceneText)

	content, err := c.CompleteJSON(ctx, describeScenePrompt, sb.String())
	if err != nil {
		return "", err
	}
	var parsed struct {
		Description string `json:"description"`
	}
	if err := DecodeLLMJSON(content, &parsed); err != nil {
		return "", fmt.Errorf("llm describe: parse payload: %w", err)
	}
	description := strings.TrimSpace(parsed.Description)
	if description == "" {
		return "", errors.New("llm describe: empty description")
	}
	return description, nil
}

// SuggestCaptionBoundaries asks the model for advisory caption group starts.
// The returned indexes are raw model output; callers sanitize them and fall
// back to fixed-size grouping when nothing usable survives.
func (c *Client) SuggestCaptionBoundaries(ctx context.Context, words []string) ([]int, error) {
	if len(words) == 0 {
		return nil, errors.New("llm boundaries: words required")
	}
	var sb strings.Builder
	for i, word := range words {
		fmt.Fprintf(&sb, "%d: %s\n", i, word)
	}
	content, err := c.CompleteJSON(ctx, captionBoundariesPrompt, sb.String())
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Boundaries []int `json:"boundaries"`
	}
	if err := DecodeLLMJSON(content, &parsed); err != nil {
		return nil, fmt.Errorf("llm boundaries: parse payload: %w", err)
	}
	return parsed.Boundaries, nil
}
