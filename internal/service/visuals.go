package service

import (
	"fmt"
	"hash/fnv"

	"plottwist-server/internal/model"
)

// Visual asset synthesis: every background and character sprite is an
// inline SVG data URI, so the generated script renders with zero external
// asset dependencies.

var backgroundPalette = []struct {
	name string
	uri  string
}{
	{"main", backgroundSVG("243b55", "141e30")},
	{"secondary", backgroundSVG("2c3e50", "141e30")},
	{"dark", backgroundSVG("1a1a2e", "0f0f1a")},
	{"light", backgroundSVG("e0e0e0", "c0c0c0")},
	{"forest", backgroundSVG("234010", "132010")},
}

var spriteColors = []string{
	"f9d5e5", "b06ab3", "6a0572", "d1d1e0", "800000",
	"333333", "e6ccb2", "7b7554", "c0d6df", "4a6fa5",
}

func backgroundSVG(sky, ground string) string {
	return fmt.Sprintf("data:image/svg+xml;utf8,<svg xmlns='http://www.w3.org/2000/svg' viewBox='0 0 800 600'><rect width='800' height='600' fill='%%23%s'/><path d='M0 450 Q 400 400 800 450 L 800 600 L 0 600 Z' fill='%%23%s'/></svg>", sky, ground)
}

func characterSVG(colorIdx int) string {
	n := len(spriteColors)
	c0 := spriteColors[colorIdx%n]
	c1 := spriteColors[(colorIdx+1)%n]
	c2 := spriteColors[(colorIdx+2)%n]
	return fmt.Sprintf("data:image/svg+xml;utf8,<svg xmlns='http://www.w3.org/2000/svg' viewBox='0 0 100 250'><rect x='35' y='20' width='30' height='30' rx='15' fill='%%23%s'/><rect x='30' y='50' width='40' height='60' fill='%%23%s'/><rect x='25' y='110' width='50' height='50' fill='%%23%s'/><rect x='25' y='110' width='20' height='70' rx='5' fill='%%23%s'/><rect x='55' y='110' width='20' height='70' rx='5' fill='%%23%s'/></svg>", c0, c1, c2, c2, c2)
}

// EnhanceVisuals replaces textual background and character descriptors with
// generated SVG assets. Backgrounds cycle through the palette by scene
// position; character sprites are assigned by analysis order, with a hash
// of the id for characters the analysis does not know.
func EnhanceVisuals(script *model.VNScript, characters []model.Character) {
	images := make(map[string]string, len(characters))
	for i, c := range characters {
		images[c.ID] = characterSVG(i % len(spriteColors))
	}

	for i := range script.Scenes {
		scene := &script.Scenes[i]
		scene.Background = backgroundPalette[i%len(backgroundPalette)].uri

		for j := range scene.Characters {
			char := &scene.Characters[j]
			img, ok := images[char.ID]
			if !ok {
				img = characterSVG(hashColorIndex(char.ID))
				images[char.ID] = img
			}
			char.Image = img
		}
	}
}

// EnhanceScene applies the same asset generation to a single on-demand
// scene, keeping sprite colors stable for ids seen in the analysis.
func EnhanceScene(scene *model.Scene, sceneIndex int, characters []model.Character) {
	scene.Background = backgroundPalette[sceneIndex%len(backgroundPalette)].uri
	for j := range scene.Characters {
		char := &scene.Characters[j]
		idx := -1
		for i, c := range characters {
			if c.ID == char.ID {
				idx = i % len(spriteColors)
				break
			}
		}
		if idx < 0 {
			idx = hashColorIndex(char.ID)
		}
		char.Image = characterSVG(idx)
	}
}

func hashColorIndex(id string) int {
	h := fnv.New32a()
	h.Write([]byte(id))
	return int(h.Sum32()) % len(spriteColors)
}
