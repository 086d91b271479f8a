// Package common holds the messages exchanged between the coordinator, the
// workers and the assembler.
package common

import (
	"fmt"
	"time"

	"go-edge/pkg/config"
	"go-edge/pkg/raster"
	"go-edge/pkg/tile"
)

const (
	JobTypeTile  = "tile"
	JobTypeImage = "image"
)

// ImageTile is the padded input block of one tile. Data holds the raster
// values in channel-planar order.
type ImageTile struct {
	ImageID  int       `json:"image_id"`
	Tile     tile.Tile `json:"tile"`
	Channels int       `json:"channels"`
	Data     []byte    `json:"data"`
}

// ProcessedImageTile is the core block of one tile after processing.
type ProcessedImageTile struct {
	ImageID  int       `json:"image_id"`
	Tile     tile.Tile `json:"tile"`
	Channels int       `json:"channels"`
	Data     []byte    `json:"data"`
}

type ImageInfo struct {
	ID            int             `json:"id"`
	InputPath     string          `json:"input_path"`
	OutputPath    string          `json:"output_path"`
	Width         int             `json:"width"`
	Height        int             `json:"height"`
	Channels      int             `json:"channels"`
	ExpectedTiles int             `json:"expected_tiles"`
	Operator      config.Operator `json:"operator"`
	LoadTime      time.Time       `json:"load_time"`
	StartTime     time.Time       `json:"start_time"`
}

type JobMessage struct {
	Type      string          `json:"type"`
	Operator  config.Operator `json:"operator"`
	ImageTile *ImageTile      `json:"image_tile,omitempty"`
}

type ResultMessage struct {
	ProcessedTile *ProcessedImageTile `json:"processed_tile"`
	WorkerID      string              `json:"worker_id"`
	ProcessTime   float64             `json:"process_time"`
}

// NewImageTile packs a padded block for t.
func NewImageTile(imageID int, t tile.Tile, padded *raster.Raster[uint8]) *ImageTile {
	return &ImageTile{
		ImageID:  imageID,
		Tile:     t,
		Channels: padded.Channels(),
		Data:     padded.Values(),
	}
}

// Raster unpacks the padded block.
func (it *ImageTile) Raster() (*raster.Raster[uint8], error) {
	r, err := raster.FromValues(it.Tile.PadHeight, it.Tile.PadWidth, it.Channels, it.Data)
	if err != nil {
		return nil, fmt.Errorf("image %d tile %d: %w", it.ImageID, it.Tile.ID, err)
	}
	return r, nil
}

// NewProcessedImageTile packs a processed core block for t.
func NewProcessedImageTile(imageID int, t tile.Tile, core *raster.Raster[uint8]) *ProcessedImageTile {
	return &ProcessedImageTile{
		ImageID:  imageID,
		Tile:     t,
		Channels: core.Channels(),
		Data:     core.Values(),
	}
}

// Raster unpacks the core block.
func (pt *ProcessedImageTile) Raster() (*raster.Raster[uint8], error) {
	r, err := raster.FromValues(pt.Tile.Height, pt.Tile.Width, pt.Channels, pt.Data)
	if err != nil {
		return nil, fmt.Errorf("image %d tile %d: %w", pt.ImageID, pt.Tile.ID, err)
	}
	return r, nil
}

// WholeImage is the single tile covering a height x width raster with no
// halo, used for operators that cannot be tiled.
func WholeImage(height, width int) tile.Tile {
	return tile.Tile{
		Height:    height,
		Width:     width,
		PadHeight: height,
		PadWidth:  width,
	}
}
