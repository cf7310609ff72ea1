package service

import (
	"sync"

	"plottwist-server/internal/model"
)

// ClaimResult describes the outcome of an atomic generation claim.
type ClaimResult int

const (
	// ClaimCached - the scene is already generated; no work to do.
	ClaimCached ClaimResult = iota
	// ClaimBusy - another caller is generating this scene right now.
	ClaimBusy
	// ClaimAcquired - the caller now owns generation of this scene.
	ClaimAcquired
)

// StoryCache holds the per-session state of script generation: the
// completed-scene cache, the derived scene graph and the set of scene ids
// currently being generated. It replaces the ambient global cache of the
// first prototype with an explicit object owned by the generation session,
// so concurrent books never share scenes.
//
// The cache-check / in-flight-check / mark-in-flight sequence is a single
// transition under one lock (TryClaim), so two callers can never both
// decide to generate the same scene id.
type StoryCache struct {
	mu       sync.Mutex
	analysis *model.LiteraryAnalysis
	scenes   map[string]model.Scene
	graph    map[string]*model.GraphNode
	inFlight map[string]struct{}
}

// NewStoryCache creates an empty cache for one generation session.
func NewStoryCache() *StoryCache {
	return &StoryCache{
		scenes:   make(map[string]model.Scene),
		graph:    make(map[string]*model.GraphNode),
		inFlight: make(map[string]struct{}),
	}
}

// Reset clears all state and pins the analysis for the new generation run.
// The graph is rebuilt from scratch; on-demand expansion later grows it but
// never prunes it.
func (c *StoryCache) Reset(analysis *model.LiteraryAnalysis) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.analysis = analysis
	c.scenes = make(map[string]model.Scene)
	c.graph = make(map[string]*model.GraphNode)
	c.inFlight = make(map[string]struct{})
}

// Analysis returns the analysis pinned by the last Reset, or nil.
func (c *StoryCache) Analysis() *model.LiteraryAnalysis {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.analysis
}

// Scene returns the cached scene for id, if generated.
func (c *StoryCache) Scene(id string) (model.Scene, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	scene, ok := c.scenes[id]
	return scene, ok
}

// SceneIDs returns the ids of all cached scenes (unordered).
func (c *StoryCache) SceneIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.scenes))
	for id := range c.scenes {
		ids = append(ids, id)
	}
	return ids
}

// GraphNode returns a copy of the graph node for id, if known. A node may
// exist before its scene does: recording a scene that points at id creates
// the target node with an incoming edge.
func (c *StoryCache) GraphNode(id string) (model.GraphNode, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	node, ok := c.graph[id]
	if !ok {
		return model.GraphNode{}, false
	}
	cp := model.GraphNode{
		Outgoing: append([]model.GraphEdgeOut(nil), node.Outgoing...),
		Incoming: append([]model.GraphEdgeIn(nil), node.Incoming...),
	}
	return cp, true
}

// TryClaim atomically resolves the generation state of a scene id:
// a cached scene wins, a foreign in-flight generation reports busy,
// otherwise the id is marked in-flight and the caller owns it.
func (c *StoryCache) TryClaim(id string) (model.Scene, ClaimResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if scene, ok := c.scenes[id]; ok {
		return scene, ClaimCached
	}
	if _, busy := c.inFlight[id]; busy {
		return model.Scene{}, ClaimBusy
	}
	c.inFlight[id] = struct{}{}
	return model.Scene{}, ClaimAcquired
}

// ForceClaim marks an id in-flight unconditionally. Used after the wait on
// a foreign generation times out and the caller takes over; the abandoned
// generator, if it ever finishes, simply overwrites the cache entry.
func (c *StoryCache) ForceClaim(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight[id] = struct{}{}
}

// Release removes an id from the in-flight set. Idempotent, safe to defer.
func (c *StoryCache) Release(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, id)
}

// InFlight reports whether a generation claim is currently held for id.
func (c *StoryCache) InFlight(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inFlight[id]
	return ok
}

// Complete stores a finished scene and derives its graph edges. Called on
// every synthesis outcome, including placeholder fallbacks, so a claimed id
// always ends up cached.
func (c *StoryCache) Complete(id string, scene model.Scene) {
	c.mu.Lock()
	defer c.mu.Unlock()
	scene.ID = id
	c.recordSceneLocked(scene)
}

// RecordScenes upserts a batch of scenes into the cache and the graph.
// Idempotent: recording the same scene twice does not duplicate edges.
func (c *StoryCache) RecordScenes(scenes []model.Scene) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, scene := range scenes {
		c.recordSceneLocked(scene)
	}
}

func (c *StoryCache) recordSceneLocked(scene model.Scene) {
	c.scenes[scene.ID] = scene

	node := c.nodeLocked(scene.ID)
	for _, line := range scene.Dialogue {
		for _, choice := range line.Choices {
			if choice.NextScene == "" || choice.NextScene == model.SceneExit {
				continue
			}
			if !hasOutgoing(node, choice.NextScene) {
				node.Outgoing = append(node.Outgoing, model.GraphEdgeOut{Target: choice.NextScene, Text: choice.Text})
			}
			target := c.nodeLocked(choice.NextScene)
			if !hasIncoming(target, scene.ID) {
				target.Incoming = append(target.Incoming, model.GraphEdgeIn{Source: scene.ID, Text: choice.Text})
			}
		}
	}
}

func (c *StoryCache) nodeLocked(id string) *model.GraphNode {
	node, ok := c.graph[id]
	if !ok {
		node = &model.GraphNode{}
		c.graph[id] = node
	}
	return node
}

func hasOutgoing(node *model.GraphNode, target string) bool {
	for _, e := range node.Outgoing {
		if e.Target == target {
			return true
		}
	}
	return false
}

func hasIncoming(node *model.GraphNode, source string) bool {
	for _, e := range node.Incoming {
		if e.Source == source {
			return true
		}
	}
	return false
}
