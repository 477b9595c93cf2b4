// Package imagegen renders the run's data-quality card as a PNG.
package imagegen

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/lox/stanhopewx/internal/quality"
)

const (
	cardWidth    = 900
	headerHeight = 70
	rowHeight    = 26
	footerHeight = 34

	barLeft  = 280
	barWidth = 360
)

var (
	titleColor   = color.RGBA{235, 238, 245, 255}
	labelColor   = color.RGBA{200, 205, 215, 255}
	missingColor = color.RGBA{220, 85, 85, 255}
	imputedColor = color.RGBA{95, 140, 220, 255}
	trackColor   = color.RGBA{52, 57, 72, 255}
)

// RenderQualityCard draws the network-wide quality rollup, one row per
// column: a red bar for the missing share and a blue bar for the imputed
// share. Per-station records are ignored.
func RenderQualityCard(records []quality.Record, generatedAt time.Time) ([]byte, error) {
	var rollup []quality.Record
	for _, rec := range records {
		if rec.Station == quality.AllStations {
			rollup = append(rollup, rec)
		}
	}
	if len(rollup) == 0 {
		return nil, errors.New("no rollup records to render")
	}

	height := headerHeight + len(rollup)*rowHeight + footerHeight
	img := image.NewRGBA(image.Rect(0, 0, cardWidth, height))

	// dark blue gradient background
	for y := 0; y < height; y++ {
		progress := float64(y) / float64(height)
		r := uint8(20 + progress*10)
		g := uint8(22 + progress*14)
		b := uint8(38 + progress*20)
		for x := 0; x < cardWidth; x++ {
			img.SetRGBA(x, y, color.RGBA{r, g, b, 255})
		}
	}

	drawText(img, "stanhope weather network - data quality", 24, 32, titleColor)
	drawText(img, "missing", barLeft, 56, missingColor)
	drawText(img, "imputed", barLeft+70, 56, imputedColor)

	for i, rec := range rollup {
		top := headerHeight + i*rowHeight

		drawText(img, rec.Column, 24, top+17, labelColor)

		fillRect(img, barLeft, top+4, barWidth, 8, trackColor)
		fillRect(img, barLeft, top+14, barWidth, 8, trackColor)
		fillRect(img, barLeft, top+4, scaleBar(rec.MissingPercent), 8, missingColor)
		fillRect(img, barLeft, top+14, scaleBar(rec.ImputationPercent), 8, imputedColor)

		summary := fmt.Sprintf("%.1f%% missing / %.1f%% imputed", rec.MissingPercent, rec.ImputationPercent)
		drawText(img, summary, barLeft+barWidth+16, top+17, labelColor)
	}

	footer := fmt.Sprintf("generated %s", generatedAt.UTC().Format("2006-01-02 15:04 UTC"))
	drawText(img, footer, 24, height-12, labelColor)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode quality card: %w", err)
	}
	return buf.Bytes(), nil
}

func scaleBar(pct float64) int {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return int(pct / 100 * barWidth)
}

func fillRect(img *image.RGBA, x, y, w, h int, col color.RGBA) {
	for yy := y; yy < y+h; yy++ {
		for xx := x; xx < x+w; xx++ {
			img.SetRGBA(xx, yy, col)
		}
	}
}

// drawText draws one line of text with the fixed bitmap face.
func drawText(img *image.RGBA, text string, x, y int, col color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
