package level

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

const testLevel = `{
  "id": "tut1",
  "name": "Tutorial",
  "limits": {"min": [-20, -10], "max": [60, 30]},
  "blocks": [
    {"id": "ground", "position": [0, 0], "vertices": [[-10, -5], [50, -5], [50, 0], [-10, 0]]},
    {"id": "rock", "position": [20, 0], "vertices": [[0, 0], [0, 2], [3, 2], [3, 0]], "grip": 12},
    {"id": "sky", "position": [0, 10], "vertices": [[0, 0], [5, 0], [5, 5]], "background": true},
    {"id": "lift", "position": [30, 5], "vertices": [[0, 0], [4, 0], [4, 0.5], [0, 0.5]], "dynamic": true}
  ],
  "entities": [
    {"id": "start", "kind": "PlayerStart", "position": [0, 1]},
    {"id": "s1", "kind": "Strawberry", "position": [10, 1], "radius": 0.5},
    {"id": "end", "kind": "EndOfLevel", "position": [45, 1]}
  ],
  "zones": [{"id": "z1", "boxes": [{"min": [5, 0], "max": [8, 4]}]}],
  "motions": [{"block": "lift", "kind": "translation", "offset": [0, 3], "period": 4}]
}`

func mustParse(t *testing.T) *Source {
	t.Helper()
	src, err := Parse([]byte(testLevel))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return src
}

// TestParseNormalizesWinding tests that clockwise blocks become CCW
func TestParseNormalizesWinding(t *testing.T) {
	src := mustParse(t)

	rock := src.Blocks[1]
	if rock.ID != "rock" {
		t.Fatalf("Expected rock, got %s", rock.ID)
	}
	area := 0.0
	for i := range rock.Vertices {
		j := (i + 1) % len(rock.Vertices)
		area += rock.Vertices[i].X()*rock.Vertices[j].Y() - rock.Vertices[j].X()*rock.Vertices[i].Y()
	}
	if area <= 0 {
		t.Errorf("Expected CCW winding after parse, signed area %f", area/2)
	}
	if src.Blocks[0].Grip != DefaultGrip {
		t.Errorf("Expected default grip %f, got %f", DefaultGrip, src.Blocks[0].Grip)
	}
	if rock.Grip != 12 {
		t.Errorf("Expected grip 12, got %f", rock.Grip)
	}
	if len(src.Hash) != 64 {
		t.Errorf("Expected hex sha256 hash, got %q", src.Hash)
	}
}

func TestReverseEdgeTags(t *testing.T) {
	// Loop a,b,c,d with edges ab=0 bc=1 cd=2 da=3. Reversed loop d,c,b,a has
	// edges dc=2 cb=1 ba=0 ad=3.
	got := reverseEdgeTags([]string{"ab", "bc", "cd", "da"})
	want := []string{"cd", "bc", "ab", "da"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected %v, got %v", want, got)
		}
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"not json", `{`},
		{"missing id", `{"blocks": []}`},
		{"too few vertices", `{"id": "x", "blocks": [{"vertices": [[0,0],[1,0]]}]}`},
		{"bad kind", `{"id": "x", "entities": [{"kind": "Banana"}]}`},
		{"duplicate block", `{"id": "x", "blocks": [{"id":"a","vertices":[[0,0],[1,0],[0,1]]},{"id":"a","vertices":[[0,0],[1,0],[0,1]]}]}`},
		{"unknown motion block", `{"id": "x", "motions": [{"block": "nope", "kind": "rotation", "period": 1}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.json))
			if !errors.Is(err, ErrInvalidLevel) {
				t.Errorf("Expected ErrInvalidLevel, got %v", err)
			}
		})
	}
}

// TestCompileGroundAndObstacle compiles a rectangular ground with one
// rectangular obstacle into exactly two convex polygons
func TestCompileGroundAndObstacle(t *testing.T) {
	src, err := Parse([]byte(`{
	  "id": "box",
	  "blocks": [
	    {"id": "ground", "vertices": [[0, 0], [10, 0], [10, 1], [0, 1]]},
	    {"id": "obstacle", "vertices": [[4, 1], [6, 1], [6, 2], [4, 2]]}
	  ]
	}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	lvl := Compile(src, CompileOptions{})
	if lvl.ErrorCount != 0 {
		t.Errorf("Expected 0 errors, got %d", lvl.ErrorCount)
	}
	if n := lvl.PolygonCount(); n != 2 {
		t.Fatalf("Expected 2 polygons, got %d", n)
	}
	for _, b := range lvl.Blocks {
		for _, p := range b.Polygons {
			if !p.IsConvex(1e-9) {
				t.Errorf("Block %s has a non-convex polygon", b.ID)
			}
		}
	}
}

func TestCompileBlocks(t *testing.T) {
	lvl := Compile(mustParse(t), CompileOptions{})

	if lvl.ErrorCount != 0 {
		t.Errorf("Expected 0 errors, got %d", lvl.ErrorCount)
	}
	rock, ok := lvl.Block("rock")
	if !ok {
		t.Fatal("rock block missing")
	}
	// Static blocks are compiled in world space.
	var area float64
	for _, p := range rock.Polygons {
		area += p.Area()
		for _, v := range p.Vertices {
			if v.Pos.X() < 20-1e-9 || v.Pos.X() > 23+1e-9 {
				t.Errorf("Rock vertex %v not in world space", v.Pos)
			}
		}
	}
	if math.Abs(area-6) > 1e-9 {
		t.Errorf("Expected rock area 6, got %f", area)
	}

	lift, _ := lvl.Block("lift")
	if !lift.Dynamic || lift.Outline[0] != (mgl64.Vec2{0, 0}) {
		t.Errorf("Expected lift outline in local space, got %v", lift.Outline)
	}
	if lvl.PlayerStart() != (mgl64.Vec2{0, 1}) {
		t.Errorf("Unexpected player start %v", lvl.PlayerStart())
	}
	if lvl.Bounds.Min != (mgl64.Vec2{-20, -10}) {
		t.Errorf("Expected limits as bounds, got %v", lvl.Bounds)
	}
}

// TestCompileConcaveGround tests that a concave ground block keeps its full area
func TestCompileConcaveGround(t *testing.T) {
	src, err := Parse([]byte(`{
  "id": "valley",
  "blocks": [
    {"id": "ground", "position": [10, -3], "vertices": [[0, 3], [1, 3], [1, 1], [2, 1], [2, 3], [3, 3], [3, 0], [0, 0]]}
  ]
}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	lvl := Compile(src, CompileOptions{})

	if lvl.ErrorCount != 0 {
		t.Errorf("Expected 0 errors, got %d", lvl.ErrorCount)
	}
	ground, ok := lvl.Block("ground")
	if !ok {
		t.Fatal("ground block missing")
	}
	if len(ground.Polygons) != 3 {
		t.Errorf("Expected 3 convex pieces, got %d", len(ground.Polygons))
	}
	var area float64
	for _, p := range ground.Polygons {
		area += p.Area()
		if !p.IsConvex(1e-9) {
			t.Errorf("Expected convex piece, got %v", p.Points())
		}
	}
	if math.Abs(area-7) > 1e-9 {
		t.Errorf("Expected ground area 7, got %f", area)
	}
}

func TestBuildIndex(t *testing.T) {
	lvl := Compile(mustParse(t), CompileOptions{})
	ix := lvl.BuildIndex(3.0)

	// ground (4) + rock (4); the background triangle is not indexed.
	if n := len(ix.StaticLines()); n != 8 {
		t.Errorf("Expected 8 static lines, got %d", n)
	}
	if len(ix.DynamicBlocks()) != 1 {
		t.Fatalf("Expected 1 dynamic block, got %d", len(ix.DynamicBlocks()))
	}
	if !ix.CheckCircle(mgl64.Vec2{32, 5.6}, 0.2) {
		t.Error("Expected the lift to be collidable at its initial position")
	}
	if ix.CheckCircle(mgl64.Vec2{2, 12}, 0.5) {
		t.Error("Background block must not collide")
	}
}

func TestCacheRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cache := NewCache(dir)
	src := mustParse(t)

	lvl, fromCache := LoadCompiled(src, cache, CompileOptions{})
	if fromCache {
		t.Error("First load should compile")
	}
	again, fromCache := LoadCompiled(src, cache, CompileOptions{})
	if !fromCache {
		t.Fatal("Second load should hit the cache")
	}
	if again.PolygonCount() != lvl.PolygonCount() || again.Hash != src.Hash {
		t.Errorf("Cached level differs: %d vs %d polygons", again.PolygonCount(), lvl.PolygonCount())
	}
	if len(again.Motions) != 1 || again.Motions[0].Offset != (mgl64.Vec2{0, 3}) {
		t.Errorf("Motions not preserved: %+v", again.Motions)
	}
}

func TestCacheInvalidation(t *testing.T) {
	dir := t.TempDir()
	cache := NewCache(dir)
	src := mustParse(t)
	if err := cache.Put(Compile(src, CompileOptions{})); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if _, err := cache.Get(src.ID, "different-hash"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss on hash mismatch, got %v", err)
	}
	if _, err := cache.Get("unknown", src.Hash); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss for missing entry, got %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, src.ID+".msgpack"), []byte{0xc1, 0x00}, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := cache.Get(src.ID, src.Hash); !errors.Is(err, ErrCacheCorrupt) {
		t.Errorf("Expected ErrCacheCorrupt, got %v", err)
	}

	// A corrupt entry falls back to compiling and repairs the cache.
	if _, fromCache := LoadCompiled(src, cache, CompileOptions{}); fromCache {
		t.Error("Corrupt entry must not be used")
	}
	if _, err := cache.Get(src.ID, src.Hash); err != nil {
		t.Errorf("Expected repaired cache, got %v", err)
	}
}

func TestDisabledCache(t *testing.T) {
	cache := NewCache("")
	if _, err := cache.Get("x", "y"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}
	if err := cache.Put(&Compiled{ID: "x"}); err != nil {
		t.Errorf("Put on disabled cache should be a no-op, got %v", err)
	}
}
