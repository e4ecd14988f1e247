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

// ShoppingTool google_shopping：商品搜索，支持分页与条数，不支持时间过滤
type ShoppingTool struct {
	serper *SerperClient
}

// NewShoppingTool 创建 google_shopping 工具
func NewShoppingTool(serper *SerperClient) *ShoppingTool {
	return &ShoppingTool{serper: serper}
}

// Spec 实现 tool.Tool
func (t *ShoppingTool) Spec() tool.Spec {
	return tool.Spec{
		Name:       "google_shopping",
		Capability: tool.CapabilityShopping,
		Description: "Search Google Shopping for products. Use it for price comparisons, product recommendations " +
			"or finding where to buy an item.",
		Schema: tool.Schema{
			Type: "object",
			Properties: map[string]tool.SchemaProperty{
				"query": {Type: "string", Description: "The product search query.", MinLength: tool.IntPtr(1)},
				"num":   {Type: "integer", Description: "Number of products to return (default 10).", Minimum: tool.Float(1), Maximum: tool.Float(100), Default: 10},
				"page":  {Type: "integer", Description: "Result page (default 1).", Minimum: tool.Float(1), Default: 1},
			},
			Required: []string{"query"},
		},
	}
}

// Execute 实现 tool.Tool
func (t *ShoppingTool) Execute(ctx context.Context, args map[string]any) (tool.Output, error) {
	payload := t.serper.basePayload(tool.String(args, "query", ""))
	payload["num"] = tool.Int(args, "num", 10)
	payload["page"] = tool.Int(args, "page", 1)

	var resp struct {
		Shopping []map[string]any `json:"shopping"`
	}
	if err := t.serper.post(ctx, "google_shopping", "/shopping", payload, &resp); err != nil {
		return tool.Output{}, err
	}

	out := tool.Output{Items: make([]tool.Item, 0, len(resp.Shopping))}
	for _, p := range resp.Shopping {
		out.Items = append(out.Items, tool.Item{
			Title: str(p, "title"),
			Link:  str(p, "link"),
			Fields: pick(p,
				[2]string{"price", ""},
				[2]string{"source", ""},
				[2]string{"rating", ""},
				[2]string{"ratingCount", "rating_count"},
				[2]string{"delivery", ""},
			),
		})
	}
	return out, nil
}
