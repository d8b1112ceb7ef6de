package main

import (
    "testing"

    cfgpkg "github.com/local/pagecomposer/internal/config"
    "github.com/local/pagecomposer/internal/pagination"
)

func TestComposeOptions(t *testing.T) {
    base := cfgpkg.ComposerConfig{SearchRange: 40, WhiteTolerance: 240, AlphaThreshold: 5, SingleTolerance: 1.1, MinMaskSize: 5}

    c := base
    c.PageFormat = "letter"
    opts, err := composeOptions(c)
    if err != nil {
        t.Fatal(err)
    }
    if opts.Format != pagination.Letter || opts.SearchRange != 40 || opts.Sampler.WhiteTolerance != 240 || opts.Sampler.AlphaThreshold != 5 {
        t.Errorf("opts = %+v", opts)
    }

    c.PageFormat, c.PageWidthMM, c.PageHeightMM = "custom", 100, 150
    if opts, err := composeOptions(c); err != nil || opts.Format.Width != 100 || opts.Format.Height != 150 {
        t.Errorf("custom = %+v, %v", opts.Format, err)
    }

    c.PageWidthMM = 0
    if _, err := composeOptions(c); err == nil {
        t.Error("expected error for zero width")
    }
    c.PageFormat = "tabloid"
    if _, err := composeOptions(c); err == nil {
        t.Error("expected error for unknown format")
    }
}
