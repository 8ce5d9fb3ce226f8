//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Pipeline groups the stage targets, which run the built CLI.
type Pipeline mg.Namespace

// Acquire downloads the hOCR pages listed in urlFile into hocr/<book>/.
func (Pipeline) Acquire(urlFile, book string) error {
	mg.Deps(Build)
	return sh.RunV(binPath(), "acquire", urlFile, "--book", book)
}

// Convert rebuilds the text of every book under hocr/.
func (Pipeline) Convert() error {
	mg.Deps(Build)
	return sh.RunV(binPath(), "convert", "--batch")
}

// Extract reads records from every text under text/.
func (Pipeline) Extract() error {
	mg.Deps(Build)
	return sh.RunV(binPath(), "extract", "--batch")
}

// Index loads extracted records into records/index/charters.db.
func (Pipeline) Index() error {
	mg.Deps(Build)
	return sh.RunV(binPath(), "records", "store")
}

// All runs convert, extract and index in order.
func (p Pipeline) All() {
	mg.SerialDeps(p.Convert, p.Extract, p.Index)
}
