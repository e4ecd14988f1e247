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

	"search-agent/internal/tool"
)

// 时间范围友好名到 Google tbs 参数的映射；anytime 不带 tbs
var tbsMapping = map[string]string{
	"past_hour":  "qdr:h",
	"past_24h":   "qdr:d",
	"past_week":  "qdr:w",
	"past_month": "qdr:m",
	"past_year":  "qdr:y",
}

// SearchTool google_search：网页搜索，支持批量查询、分页与时间范围
type SearchTool struct {
	serper *SerperClient
}

// NewSearchTool 创建 google_search 工具
func NewSearchTool(serper *SerperClient) *SearchTool {
	return &SearchTool{serper: serper}
}

// Spec 实现 tool.Tool
func (t *SearchTool) Spec() tool.Spec {
	return tool.Spec{
		Name:       "google_search",
		Capability: tool.CapabilitySearch,
		Description: "Search Google for information. Use this to find facts, current events, or specific details " +
			"needed to answer the user's question.",
		Schema: tool.Schema{
			Type: "object",
			Properties: map[string]tool.SchemaProperty{
				"query": {
					Description: "The search query string, or a list of query strings for batch search.",
					AnyOf: []tool.SchemaProperty{
						{Type: "string", MinLength: tool.IntPtr(1)},
						{Type: "array", MinItems: tool.IntPtr(1), Items: &tool.SchemaProperty{Type: "string", MinLength: tool.IntPtr(1)}},
					},
				},
				"page": {
					Type:        "integer",
					Description: "The page number of search results to retrieve (default is 1). Increase this to see more results.",
					Minimum:     tool.Float(1),
					Maximum:     tool.Float(10),
					Default:     1,
				},
				"tbs": {
					Type:        "string",
					Description: "Time range for the search results. Default is 'anytime'. Use 'past_24h' for very recent news.",
					Enum:        []any{"anytime", "past_hour", "past_24h", "past_week", "past_month", "past_year"},
					Default:     "anytime",
				},
			},
			Required: []string{"query"},
		},
	}
}

type serperOrganic struct {
	Organic   []map[string]any `json:"organic"`
	AnswerBox map[string]any   `json:"answerBox"`
	Knowledge map[string]any   `json:"knowledgeGraph"`
}

// Execute 实现 tool.Tool
func (t *SearchTool) Execute(ctx context.Context, args map[string]any) (tool.Output, error) {
	queries := tool.Strings(args, "query")
	page := tool.Int(args, "page", 1)
	tbs := tbsMapping[tool.String(args, "tbs", "")]

	build := func(q string) map[string]any {
		p := t.serper.basePayload(q)
		p["page"] = page
		if tbs != "" {
			p["tbs"] = tbs
		}
		return p
	}

	var responses []serperOrganic
	if _, batch := args["query"].([]any); batch || len(queries) > 1 {
		payload := make([]map[string]any, 0, len(queries))
		for _, q := range queries {
			payload = append(payload, build(q))
		}
		if err := t.serper.post(ctx, "google_search", "/search", payload, &responses); err != nil {
			return tool.Output{}, err
		}
	} else {
		var single serperOrganic
		q := ""
		if len(queries) > 0 {
			q = queries[0]
		}
		if err := t.serper.post(ctx, "google_search", "/search", build(q), &single); err != nil {
			return tool.Output{}, err
		}
		responses = []serperOrganic{single}
	}

	var out tool.Output
	for i, r := range responses {
		if box := r.AnswerBox; len(box) > 0 {
			snippet := str(box, "answer")
			if snippet == "" {
				snippet = str(box, "snippet")
			}
			out.Items = append(out.Items, tool.Item{
				Title:   "Answer box: " + str(box, "title"),
				Link:    str(box, "link"),
				Snippet: snippet,
			})
		}
		if kg := r.Knowledge; len(kg) > 0 && str(kg, "description") != "" {
			out.Items = append(out.Items, tool.Item{
				Title:   "Knowledge graph: " + str(kg, "title"),
				Link:    str(kg, "descriptionLink"),
				Snippet: str(kg, "description"),
			})
		}
		for _, o := range r.Organic {
			it := tool.Item{Title: str(o, "title"), Link: str(o, "link"), Snippet: str(o, "snippet")}
			fields := pick(o, [2]string{"date", ""})
			if len(responses) > 1 && i < len(queries) {
				if fields == nil {
					fields = map[string]any{}
				}
				fields["query"] = queries[i]
			}
			it.Fields = fields
			out.Items = append(out.Items, it)
		}
	}
	return out, nil
}
