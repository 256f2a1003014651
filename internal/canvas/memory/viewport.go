package memory

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/project"

	"github.com/joeblew999/plat-mapbridge/internal/canvas"
	"github.com/joeblew999/plat-mapbridge/internal/maperr"
)

const (
	maxZoom     = 22
	maxTileZoom = 14
	// world width in web mercator meters
	worldMeters = 2 * math.Pi * orb.EarthRadius
)

func clampZoom(z float64) float64 {
	return math.Max(0, math.Min(maxZoom, z))
}

// tileZoom is the integer zoom tiles are requested at for a camera zoom.
func tileZoom(z float64) maptile.Zoom {
	tz := int(math.Floor(z))
	if tz < 0 {
		tz = 0
	}
	if tz > maxTileZoom {
		tz = maxTileZoom
	}
	return maptile.Zoom(tz)
}

func metersPerPixel(zoom, tileSize float64) float64 {
	return worldMeters / (tileSize * math.Exp2(zoom))
}

// viewport returns the geographic bound visible from cam.
func viewport(cam canvas.Camera, o Options) orb.Bound {
	c := project.Point(cam.Center, project.WGS84.ToMercator)
	mpp := metersPerPixel(cam.Zoom, o.TileSize)
	hw := float64(o.Width) / 2 * mpp
	hh := float64(o.Height) / 2 * mpp
	b := orb.Bound{
		Min: orb.Point{c[0] - hw, c[1] - hh},
		Max: orb.Point{c[0] + hw, c[1] + hh},
	}
	return project.Bound(b, project.Mercator.ToWGS84)
}

// fit returns the camera that shows b inside the viewport minus padding.
func fit(b orb.Bound, padding float64, o Options) (canvas.Camera, error) {
	if b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] {
		return canvas.Camera{}, maperr.Interaction("fit bounds: empty bound")
	}
	w := float64(o.Width) - 2*padding
	h := float64(o.Height) - 2*padding
	if w <= 0 || h <= 0 {
		return canvas.Camera{}, maperr.Configuration("fit bounds: padding %v leaves no room in %dx%d", padding, o.Width, o.Height)
	}

	m := project.Bound(b, project.WGS84.ToMercator)
	center := project.Point(m.Center(), project.Mercator.ToWGS84)

	dx, dy := m.Max[0]-m.Min[0], m.Max[1]-m.Min[1]
	if dx == 0 && dy == 0 {
		return canvas.Camera{Center: center, Zoom: maxZoom}, nil
	}
	mpp := math.Max(dx/w, dy/h)
	zoom := math.Log2(worldMeters / (o.TileSize * mpp))
	return canvas.Camera{Center: center, Zoom: clampZoom(zoom)}, nil
}

// tilesInBounds returns all tiles at a zoom level that intersect a bound.
func tilesInBounds(bounds orb.Bound, zoom maptile.Zoom) []maptile.Tile {
	minTile := maptile.At(bounds.Min, zoom)
	maxTile := maptile.At(bounds.Max, zoom)

	minX, maxX := minTile.X, maxTile.X
	if minX > maxX {
		minX, maxX = maxX, minX
	}
	minY, maxY := minTile.Y, maxTile.Y
	if minY > maxY {
		minY, maxY = maxY, minY
	}

	var tiles []maptile.Tile
	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			tiles = append(tiles, maptile.New(x, y, zoom))
		}
	}
	return tiles
}
