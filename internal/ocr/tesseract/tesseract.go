// Package tesseract provides the gosseract-backed OCR engine.
package tesseract

import (
	"context"
	"fmt"
	"strings"

	"github.com/Lllllllleong/namefinder/internal/ocr"
	"github.com/otiai10/gosseract/v2"
)

// Engine recognizes English text in a single uniform block. Layout analysis
// and auxiliary outputs (boxes, hOCR) are never requested.
type Engine struct {
	clientFactory func() *gosseract.Client
}

// New constructs a Tesseract-backed engine.
func New() *Engine {
	return &Engine{clientFactory: gosseract.NewClient}
}

func (e *Engine) Name() string { return "tesseract" }

// Recognize normalizes the image and runs one recognition pass.
func (e *Engine) Recognize(ctx context.Context, in ocr.Input) (ocr.Result, error) {
	if err := ctx.Err(); err != nil {
		return ocr.Result{}, err
	}
	img, err := ocr.NormalizeImage(in.Image)
	if err != nil {
		return ocr.Result{}, err
	}

	c := e.clientFactory()
	defer c.Close()

	if err := c.SetLanguage("eng"); err != nil {
		return ocr.Result{}, fmt.Errorf("set language: %w", err)
	}
	if err := c.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
		return ocr.Result{}, fmt.Errorf("set page segmentation: %w", err)
	}
	if err := c.SetVariable(gosseract.SettableVariable("preserve_interword_spaces"), "1"); err != nil {
		return ocr.Result{}, fmt.Errorf("set variable: %w", err)
	}
	if err := c.SetImageFromBytes(img); err != nil {
		return ocr.Result{}, fmt.Errorf("set image: %w", err)
	}
	text, err := c.Text()
	if err != nil {
		return ocr.Result{}, fmt.Errorf("recognize text: %w", err)
	}
	return ocr.Result{
		InputID: in.ID,
		Text:    strings.TrimSpace(text),
		Engine:  e.Name(),
	}, nil
}
