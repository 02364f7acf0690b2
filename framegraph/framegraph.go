// Package framegraph builds the static coordinate frame tree of the device and broadcasts it.
package framegraph

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang/geo/r3"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/rsnode/device"
	"go.viam.com/rsnode/logging"
	"go.viam.com/rsnode/msgs"
	"go.viam.com/rsnode/spatialmath"
)

// ErrNoBaseStream is returned when none of the streams that can anchor the frame tree exist.
var ErrNoBaseStream = errors.New("no known base stream found for transformations")

// basePriority lists the stream kinds that can anchor the tree, most preferred first.
var basePriority = []device.StreamKind{device.Depth, device.Pose}

// SelectBaseStream picks the profile all static edges are expressed relative to.
func SelectBaseStream(available []device.Profile) (device.Profile, error) {
	for _, kind := range basePriority {
		if p, ok := lo.Find(available, func(p device.Profile) bool { return p.Kind == kind }); ok {
			return p, nil
		}
	}
	return device.Profile{}, ErrNoBaseStream
}

// ExtrinsicsSource supplies the transform between two streams.
type ExtrinsicsSource interface {
	Extrinsics(from, to device.Profile) (device.Extrinsics, error)
}

// Builder accumulates static edges. Edges and Build may be called concurrently.
type Builder struct {
	source ExtrinsicsSource
	prefix string
	logger logging.Logger

	mu    sync.Mutex
	edges []msgs.TransformStamped
}

// NewBuilder returns an empty builder. prefix names the camera in frame ids.
func NewBuilder(source ExtrinsicsSource, prefix string, logger logging.Logger) *Builder {
	return &Builder{source: source, prefix: prefix, logger: logger}
}

// Reset drops every edge.
func (b *Builder) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.edges = nil
}

// BuildAll resets the builder and adds the edges of every profile, preceded by the edge
// attaching the base stream's frame to the device body.
func (b *Builder) BuildAll(profiles []device.Profile, base device.Profile) error {
	b.Reset()
	b.mu.Lock()
	b.edges = append(b.edges, edge(device.BaseFrameID(b.prefix), base.Identity().FrameID(b.prefix),
		r3.Vector{}, spatialmath.NewZeroOrientation()))
	b.mu.Unlock()
	for _, p := range profiles {
		if err := b.Build(p, base); err != nil {
			return err
		}
	}
	return nil
}

// Build adds the edges placing p relative to base: base to stream, and stream to its optical
// frame. Video streams at index 1 other than depth also get a frame for depth aligned to them.
func (b *Builder) Build(p, base device.Profile) error {
	id := p.Identity()
	ex, err := b.source.Extrinsics(p, base)
	if err != nil {
		if !errors.Is(err, device.ErrExtrinsicsUnavailable) {
			return errors.Wrapf(err, "extrinsics %s to %s", id, base.Identity())
		}
		b.logger.Warnw("extrinsics unavailable, using identity",
			"from", id.String(), "to", base.Identity().String(), "error", err)
		ex = device.IdentityExtrinsics()
	}

	rotation := spatialmath.Conjugate(spatialmath.QuatFromRotationMatrix(ex.Rotation), spatialmath.OpticalRotation())
	translation := spatialmath.OpticalTranslation(r3.Vector{X: ex.Translation[0], Y: ex.Translation[1], Z: ex.Translation[2]})
	baseFrame := base.Identity().FrameID(b.prefix)

	edges := []msgs.TransformStamped{
		edge(baseFrame, id.FrameID(b.prefix), translation, rotation),
		edge(id.FrameID(b.prefix), id.OpticalFrameID(b.prefix), r3.Vector{}, spatialmath.OpticalRotation()),
	}
	if p.IsVideo() && p.Kind != device.Depth && p.Index == 1 {
		aligned := id.AlignedDepthFrameID(b.prefix)
		edges = append(edges,
			edge(baseFrame, aligned, translation, rotation),
			edge(aligned, id.OpticalFrameID(b.prefix), r3.Vector{}, spatialmath.OpticalRotation()),
		)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.edges = append(b.edges, edges...)
	return nil
}

func edge(parent, child string, translation r3.Vector, rotation quat.Number) msgs.TransformStamped {
	return msgs.TransformStamped{
		Header:       msgs.Header{FrameID: parent},
		ChildFrameID: child,
		Translation:  translation,
		Rotation:     rotation,
	}
}

// Edges returns a copy of the current edges.
func (b *Builder) Edges() []msgs.TransformStamped {
	return b.Stamped(time.Time{})
}

// Stamped returns a copy of the current edges, each stamped with t.
func (b *Builder) Stamped(t time.Time) []msgs.TransformStamped {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]msgs.TransformStamped, len(b.edges))
	copy(out, b.edges)
	if !t.IsZero() {
		for i := range out {
			out[i].Stamp = t
		}
	}
	return out
}

// String renders the edges as a table of parent, child, translation and rotation.
func (b *Builder) String() string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"#", "Parent", "Child", "Translation", "Rotation"})
	for i, e := range b.Edges() {
		t.AppendRow(table.Row{
			i,
			e.FrameID,
			e.ChildFrameID,
			fmt.Sprintf("X:%.4f, Y:%.4f, Z:%.4f", e.Translation.X, e.Translation.Y, e.Translation.Z),
			fmt.Sprintf("W:%.3f, X:%.3f, Y:%.3f, Z:%.3f", e.Rotation.Real, e.Rotation.Imag, e.Rotation.Jmag, e.Rotation.Kmag),
		})
	}
	return t.Render()
}
