package service

import (
	"math/rand"
	"strings"

	"go.uber.org/zap"

	"plottwist-server/internal/model"
)

// ConnectivityRepairer post-processes a generated script so that every
// choice target resolves to a real scene and every scene is reachable from
// the start of the story. It mutates choices in place and never adds or
// removes scenes.
type ConnectivityRepairer struct {
	rng *rand.Rand
	log *zap.Logger
}

// NewConnectivityRepairer creates a repairer. The rng decides which reached
// scene hosts the synthetic edge to an unreachable one; injecting it keeps
// repairs reproducible.
func NewConnectivityRepairer(rng *rand.Rand, log *zap.Logger) *ConnectivityRepairer {
	return &ConnectivityRepairer{rng: rng, log: log}
}

// Repair fixes dangling references, then stitches unreachable scenes into
// the graph. Returns the ids of scenes that remain unreachable because no
// reached scene offered a choice line to host the new edge.
func (r *ConnectivityRepairer) Repair(script *model.VNScript) []string {
	ids := make([]string, 0, len(script.Scenes))
	idSet := make(map[string]struct{}, len(script.Scenes))
	for _, scene := range script.Scenes {
		ids = append(ids, scene.ID)
		idSet[scene.ID] = struct{}{}
	}
	if len(ids) == 0 {
		return nil
	}

	r.repairReferences(script, ids, idSet)
	return r.repairReachability(script, ids, idSet)
}

// repairReferences retargets every choice whose target is neither a known
// scene nor the exit sentinel. Preference goes to an id related by
// substring; otherwise the first scene is the fallback target.
func (r *ConnectivityRepairer) repairReferences(script *model.VNScript, ids []string, idSet map[string]struct{}) {
	for si := range script.Scenes {
		scene := &script.Scenes[si]
		for di := range scene.Dialogue {
			for ci := range scene.Dialogue[di].Choices {
				choice := &scene.Dialogue[di].Choices[ci]
				target := choice.NextScene
				if target == model.SceneExit {
					continue
				}
				if _, ok := idSet[target]; ok {
					continue
				}

				fixed := ids[0]
				for _, candidate := range ids {
					if strings.Contains(candidate, target) || strings.Contains(target, candidate) {
						fixed = candidate
						break
					}
				}
				r.log.Info("Retargeting invalid scene reference",
					zap.String("source", scene.ID),
					zap.String("invalid_target", target),
					zap.String("new_target", fixed))
				choice.NextScene = fixed
			}
		}
	}
}

// repairReachability computes the forward closure from the start set and
// adds one "Explore a different path" edge per unreached scene, from a
// randomly chosen reached scene. The chosen host must already have a
// dialogue line carrying choices; if it does not, the scene is left
// unreachable and reported.
func (r *ConnectivityRepairer) repairReachability(script *model.VNScript, ids []string, idSet map[string]struct{}) []string {
	reached := make(map[string]struct{})
	for _, start := range []string{"scene_intro", "scene_1"} {
		if _, ok := idSet[start]; ok {
			reached[start] = struct{}{}
		}
	}
	if len(reached) == 0 {
		reached[ids[0]] = struct{}{}
	}

	// Fixed-point closure over choice edges.
	for {
		grew := false
		for _, scene := range script.Scenes {
			if _, ok := reached[scene.ID]; !ok {
				continue
			}
			for _, line := range scene.Dialogue {
				for _, choice := range line.Choices {
					if choice.NextScene == model.SceneExit {
						continue
					}
					if _, ok := reached[choice.NextScene]; !ok {
						reached[choice.NextScene] = struct{}{}
						grew = true
					}
				}
			}
		}
		if !grew {
			break
		}
	}

	reachedIDs := make([]string, 0, len(reached))
	for _, id := range ids {
		if _, ok := reached[id]; ok {
			reachedIDs = append(reachedIDs, id)
		}
	}

	var stillUnreachable []string
	for _, id := range ids {
		if _, ok := reached[id]; ok {
			continue
		}
		source := reachedIDs[r.rng.Intn(len(reachedIDs))]
		if r.appendEdge(script, source, id) {
			r.log.Info("Connected unreachable scene",
				zap.String("source", source), zap.String("target", id))
		} else {
			r.log.Warn("No insertion point for unreachable scene",
				zap.String("source", source), zap.String("target", id))
			stillUnreachable = append(stillUnreachable, id)
		}
	}
	return stillUnreachable
}

// appendEdge adds the synthetic choice to the last choice-bearing dialogue
// line of the source scene, searching from the end backward.
func (r *ConnectivityRepairer) appendEdge(script *model.VNScript, sourceID, targetID string) bool {
	for si := range script.Scenes {
		scene := &script.Scenes[si]
		if scene.ID != sourceID {
			continue
		}
		for di := len(scene.Dialogue) - 1; di >= 0; di-- {
			line := &scene.Dialogue[di]
			if len(line.Choices) > 0 {
				line.Choices = append(line.Choices, model.Choice{
					Text:      "Explore a different path",
					NextScene: targetID,
				})
				return true
			}
		}
		return false
	}
	return false
}
