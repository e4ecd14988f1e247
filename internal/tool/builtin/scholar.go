// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package builtin

import (
	"context"
	"strings"

	"search-agent/internal/tool"
)

// ScholarTool google_scholar：学术论文检索，可按年份区间过滤
type ScholarTool struct {
	serper *SerperClient
}

// NewScholarTool 创建 google_scholar 工具
func NewScholarTool(serper *SerperClient) *ScholarTool {
	return &ScholarTool{serper: serper}
}

// Spec 实现 tool.Tool
func (t *ScholarTool) Spec() tool.Spec {
	return tool.Spec{
		Name:       "google_scholar",
		Capability: tool.CapabilityScholar,
		Description: "Search Google Scholar for academic papers. Returns title, authors, publication info, year, " +
			"citation count and PDF link when available.",
		Schema: tool.Schema{
			Type: "object",
			Properties: map[string]tool.SchemaProperty{
				"query":     {Type: "string", Description: "The academic search query.", MinLength: tool.IntPtr(1)},
				"num":       {Type: "integer", Description: "Number of papers to return (default 10).", Minimum: tool.Float(1), Maximum: tool.Float(20), Default: 10},
				"year_low":  {Type: "integer", Description: "Earliest publication year.", Minimum: tool.Float(1800), Maximum: tool.Float(2100)},
				"year_high": {Type: "integer", Description: "Latest publication year.", Minimum: tool.Float(1800), Maximum: tool.Float(2100)},
			},
			Required: []string{"query"},
		},
	}
}

// Execute 实现 tool.Tool
func (t *ScholarTool) Execute(ctx context.Context, args map[string]any) (tool.Output, error) {
	payload := t.serper.basePayload(tool.String(args, "query", ""))
	payload["num"] = tool.Int(args, "num", 10)
	if y := tool.Int(args, "year_low", 0); y > 0 {
		payload["as_ylo"] = y
	}
	if y := tool.Int(args, "year_high", 0); y > 0 {
		payload["as_yhi"] = y
	}

	var resp struct {
		Organic []map[string]any `json:"organic"`
	}
	if err := t.serper.post(ctx, "google_scholar", "/scholar", payload, &resp); err != nil {
		return tool.Output{}, err
	}

	out := tool.Output{Items: make([]tool.Item, 0, len(resp.Organic))}
	for _, p := range resp.Organic {
		fields := pick(p,
			[2]string{"publicationInfo", "publication_info"},
			[2]string{"year", ""},
			[2]string{"citedBy", "cited_by"},
			[2]string{"pdfUrl", "pdf_url"},
		)
		if authors := parseAuthors(str(p, "publicationInfo")); len(authors) > 0 {
			if fields == nil {
				fields = map[string]any{}
			}
			fields["authors"] = authors
		}
		out.Items = append(out.Items, tool.Item{
			Title:   str(p, "title"),
			Link:    str(p, "link"),
			Snippet: str(p, "snippet"),
			Fields:  fields,
		})
	}
	return out, nil
}

// parseAuthors 从 "A Smith, B Jones - Nature, 2020 - nature.com" 中取出作者列表
func parseAuthors(info string) []string {
	if info == "" {
		return nil
	}
	head, _, _ := strings.Cut(info, " - ")
	var authors []string
	for _, a := range strings.Split(head, ",") {
		a = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(a), "…"))
		if a != "" {
			authors = append(authors, a)
		}
	}
	return authors
}
