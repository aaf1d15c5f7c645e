package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"pub-viewer/bibtex"
	"pub-viewer/services"
)

func check(w io.Writer, path, format string, maxBytes int64) error {
	switch format {
	case "json", "yaml", "text", "summary":
	default:
		return fmt.Errorf("unknown format %q", format)
	}

	content, err := services.ValidateBibFile(path, maxBytes)
	if err != nil {
		return err
	}
	entries, err := bibtex.Parse(content)
	if err != nil {
		return err
	}

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "yaml":
		docs := make([]map[string]string, len(entries))
		for i, e := range entries {
			docs[i] = e.Map()
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(docs); err != nil {
			return err
		}
		return enc.Close()
	case "text":
		for _, e := range entries {
			if _, err := fmt.Fprintf(w, "[%s] %s\n", e.Key(), services.FormatReference(e)); err != nil {
				return err
			}
		}
		return nil
	}
	_, err = fmt.Fprintf(w, "%s: %d publications\n", path, len(entries))
	return err
}

func isDataError(err error) bool {
	var fe *services.FileValidationError
	var pe *bibtex.ParseError
	return errors.As(err, &fe) || errors.As(err, &pe)
}
