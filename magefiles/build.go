//go:build mage

package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

var shaderStages = []string{".vert", ".tesc", ".tese", ".geom", ".frag", ".comp"}

// Compiles every GLSL source under shaders/ into name.stage.spv next to it.
func (Build) Shaders() error {
	return buildShaders()
}

// Builds the demo binary.
func (Build) Demo() error {
	_, err := executeCmd("go", withArgs("build", "-o", "bin/anima-gpu", "."), withStream())
	return err
}

func buildShaders() error {
	for _, ext := range shaderStages {
		sources, err := filepath.Glob(filepath.Join("shaders", "*"+ext))
		if err != nil {
			return err
		}
		for _, src := range sources {
			out := src + ".spv"
			if _, err := executeCmd("glslc", withArgs(src, "-o", out), withStream()); err != nil {
				return fmt.Errorf("compiling %s: %w", strings.TrimPrefix(src, "shaders/"), err)
			}
		}
	}
	return nil
}
