package store

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/newmanjoel/Lights/animation"
)

var ErrNotFound = errors.New("animation not found")

type libraryFile struct {
	Animations []record `yaml:"Animations"`
}

type record struct {
	ID     int         `yaml:"Id"`
	Name   string      `yaml:"Name"`
	Speed  float64     `yaml:"Speed"`
	Frames []frameData `yaml:"Frames"`
}

// frameData accepts the loosely typed pixel arrays found in library files:
// a sequence of integers or #rrggbb strings, or a single string holding an
// array literal such as "[1,2,3]".
type frameData []uint32

func (f *frameData) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var literal yaml.Node
		if err := yaml.Unmarshal([]byte(node.Value), &literal); err != nil {
			return fmt.Errorf("line %d: frame %q: %w", node.Line, node.Value, err)
		}
		if len(literal.Content) != 1 || literal.Content[0].Kind != yaml.SequenceNode {
			return fmt.Errorf("line %d: frame %q is not an array", node.Line, node.Value)
		}
		return f.decodeSequence(literal.Content[0], node.Line)
	case yaml.SequenceNode:
		return f.decodeSequence(node, node.Line)
	}
	return fmt.Errorf("line %d: frame must be an array of pixels", node.Line)
}

func (f *frameData) decodeSequence(node *yaml.Node, line int) error {
	pixels := make([]uint32, 0, len(node.Content))
	for i, item := range node.Content {
		if item.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: pixel %d is not a scalar", line, i)
		}
		if strings.HasPrefix(item.Value, "#") {
			color, err := animation.ParseHexColor(item.Value)
			if err != nil {
				return fmt.Errorf("line %d: pixel %d: %w", line, i, err)
			}
			pixels = append(pixels, color)
			continue
		}
		var value uint32
		if err := item.Decode(&value); err != nil {
			return fmt.Errorf("line %d: pixel %d %q: %w", line, i, item.Value, err)
		}
		if value > 0xFFFFFF {
			return fmt.Errorf("line %d: pixel %d %#x exceeds 0xffffff", line, i, value)
		}
		pixels = append(pixels, value)
	}
	*f = pixels
	return nil
}

func (r record) animation() (animation.Animation, error) {
	anim := animation.Animation{ID: r.ID, Name: r.Name, SpeedFPS: r.Speed}
	for _, f := range r.Frames {
		anim.Frames = append(anim.Frames, animation.Frame{Pixels: f})
	}
	return anim, anim.Validate()
}

// Library is the set of named animations read from a YAML file. It is safe
// for concurrent use; Reload swaps the whole set at once.
type Library struct {
	file       string
	mu         sync.RWMutex
	animations map[int]animation.Animation
}

// Open reads the library file. A missing file yields an empty library.
func Open(file string) (*Library, error) {
	l := &Library{file: file, animations: map[int]animation.Animation{}}
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Reload re-reads the file. On error the previous content stays in place.
func (l *Library) Reload() error {
	animations, err := load(l.file)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.animations = animations
	l.mu.Unlock()
	slog.Info("Animation library loaded", "file", l.file, "animations", len(animations))
	return nil
}

func load(file string) (map[int]animation.Animation, error) {
	animations := map[int]animation.Animation{}
	content, err := os.ReadFile(file)
	if errors.Is(err, os.ErrNotExist) {
		slog.Warn("Animation library file missing, library is empty", "file", file)
		return animations, nil
	}
	if err != nil {
		return nil, fmt.Errorf("can't read animation library %s: %w", file, err)
	}

	var lf libraryFile
	if err := yaml.Unmarshal(content, &lf); err != nil {
		return nil, fmt.Errorf("can't decode animation library %s: %w", file, err)
	}
	var errs []error
	for _, r := range lf.Animations {
		if r.ID <= 0 {
			errs = append(errs, fmt.Errorf("animation %q: id must be > 0, got %d", r.Name, r.ID))
			continue
		}
		if _, dup := animations[r.ID]; dup {
			errs = append(errs, fmt.Errorf("animation %q: duplicate id %d", r.Name, r.ID))
			continue
		}
		anim, err := r.animation()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		animations[r.ID] = anim
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid animation library %s: %w", file, err)
	}
	return animations, nil
}

func (l *Library) Get(id int) (animation.Animation, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	anim, ok := l.animations[id]
	if !ok {
		return animation.Animation{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return anim, nil
}

// Summary describes an animation without its frames.
type Summary struct {
	ID     int     `json:"id"`
	Name   string  `json:"name"`
	Speed  float64 `json:"speed"`
	Frames int     `json:"frames"`
	Pixels int     `json:"pixels"`
}

func Summarise(a animation.Animation) Summary {
	return Summary{ID: a.ID, Name: a.Name, Speed: a.SpeedFPS, Frames: len(a.Frames), Pixels: a.PixelCount()}
}

// List returns all animations ordered by id.
func (l *Library) List() []Summary {
	l.mu.RLock()
	defer l.mu.RUnlock()
	list := make([]Summary, 0, len(l.animations))
	for _, a := range l.animations {
		list = append(list, Summarise(a))
	}
	slices.SortFunc(list, func(a, b Summary) int { return a.ID - b.ID })
	return list
}

func (l *Library) File() string {
	return l.file
}
