package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Septimus4/Futurisys/internal/httpapi"
)

var (
	openapiOutput string
	openapiFormat string
)

var openapiCmd = &cobra.Command{
	Use:   "openapi",
	Short: "Write the OpenAPI document",
	RunE: func(cmd *cobra.Command, args []string) error {
		doc := httpapi.OpenAPIDocument(httpapi.APIVersion, time.Now())

		var w io.Writer = cmd.OutOrStdout()
		if openapiOutput != "" && openapiOutput != "-" {
			f, err := os.Create(openapiOutput)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", openapiOutput, err)
			}
			defer f.Close()
			w = f
		}
		return writeDocument(w, doc, openapiFormat)
	},
}

func writeDocument(w io.Writer, doc map[string]any, format string) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q (want json or yaml)", format)
	}
}

func init() {
	openapiCmd.Flags().StringVarP(&openapiOutput, "output", "o", "openapi.json", "output file, - for stdout")
	openapiCmd.Flags().StringVar(&openapiFormat, "format", "json", "json or yaml")
	rootCmd.AddCommand(openapiCmd)
}
