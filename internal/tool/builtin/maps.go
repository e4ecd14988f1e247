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
	"fmt"
	"math"
	"sort"

	"search-agent/internal/tool"
)

// Place 地图检索结果中的地点
type Place struct {
	Title      string
	Address    string
	Rating     float64
	Reviews    int
	PriceLevel string
	Category   string
	Latitude   float64
	Longitude  float64
	MapsLink   string
}

func (p Place) item() tool.Item {
	fields := map[string]any{
		"address":          p.Address,
		"rating":           p.Rating,
		"reviews":          p.Reviews,
		"category":         p.Category,
		"google_maps_link": p.MapsLink,
	}
	if p.PriceLevel != "" {
		fields["price_level"] = p.PriceLevel
	}
	if p.Latitude != 0 || p.Longitude != 0 {
		fields["coordinates"] = map[string]float64{"latitude": p.Latitude, "longitude": p.Longitude}
	}
	return tool.Item{Title: p.Title, Link: p.MapsLink, Snippet: p.Address, Fields: fields}
}

func mapsSchema(extra map[string]tool.SchemaProperty) tool.Schema {
	props := map[string]tool.SchemaProperty{
		"query":    {Type: "string", Description: "What to search for, e.g. 'coffee shops'.", MinLength: tool.IntPtr(1)},
		"location": {Type: "string", Description: "Where to search, e.g. 'Central, Hong Kong'."},
		"num":      {Type: "integer", Description: "Number of places to return (default 10).", Minimum: tool.Float(1), Maximum: tool.Float(20), Default: 10},
	}
	for k, v := range extra {
		props[k] = v
	}
	return tool.Schema{Type: "object", Properties: props, Required: []string{"query"}}
}

// searchPlaces 调用 Serper /maps 并归一为 Place 列表
func searchPlaces(ctx context.Context, serper *SerperClient, toolName string, args map[string]any) ([]Place, error) {
	query := tool.String(args, "query", "")
	if loc := tool.String(args, "location", ""); loc != "" {
		query = query + " in " + loc
	}
	payload := serper.basePayload(query)
	num := tool.Int(args, "num", 10)
	payload["num"] = num

	var resp struct {
		Places []map[string]any `json:"places"`
	}
	if err := serper.post(ctx, toolName, "/maps", payload, &resp); err != nil {
		return nil, err
	}
	places := make([]Place, 0, len(resp.Places))
	for _, m := range resp.Places {
		p := Place{
			Title:      str(m, "title"),
			Address:    str(m, "address"),
			PriceLevel: str(m, "priceLevel"),
			Category:   str(m, "type"),
		}
		p.Rating, _ = tool.AsFloat(m["rating"])
		p.Reviews, _ = tool.AsInt(m["ratingCount"])
		p.Latitude, _ = tool.AsFloat(m["latitude"])
		p.Longitude, _ = tool.AsFloat(m["longitude"])
		if cid := str(m, "cid"); cid != "" {
			p.MapsLink = "https://www.google.com/maps?cid=" + cid
		} else if p.Latitude != 0 || p.Longitude != 0 {
			p.MapsLink = fmt.Sprintf("https://www.google.com/maps/search/?api=1&query=%f,%f", p.Latitude, p.Longitude)
		}
		places = append(places, p)
	}
	if len(places) > num {
		places = places[:num]
	}
	return places, nil
}

// MapsTool google_maps_search：地点检索
type MapsTool struct {
	serper *SerperClient
}

// NewMapsTool 创建 google_maps_search 工具
func NewMapsTool(serper *SerperClient) *MapsTool {
	return &MapsTool{serper: serper}
}

// Spec 实现 tool.Tool
func (t *MapsTool) Spec() tool.Spec {
	return tool.Spec{
		Name:       "google_maps_search",
		Capability: tool.CapabilityMaps,
		Description: "Search Google Maps for places, restaurants, cafes, attractions or any location-based query. " +
			"Returns name, address, rating, reviews and coordinates.",
		Schema: mapsSchema(nil),
	}
}

// Execute 实现 tool.Tool
func (t *MapsTool) Execute(ctx context.Context, args map[string]any) (tool.Output, error) {
	places, err := searchPlaces(ctx, t.serper, "google_maps_search", args)
	if err != nil {
		return tool.Output{}, err
	}
	out := tool.Output{Items: make([]tool.Item, 0, len(places))}
	for _, p := range places {
		out.Items = append(out.Items, p.item())
	}
	return out, nil
}

// RecommendTool recommend_places：在地图检索结果上按评分与评论量排序推荐
type RecommendTool struct {
	serper *SerperClient
}

// NewRecommendTool 创建 recommend_places 工具
func NewRecommendTool(serper *SerperClient) *RecommendTool {
	return &RecommendTool{serper: serper}
}

// recommendDefaultNum 未指定 num 时推荐的数量
const recommendDefaultNum = 5

// Spec 实现 tool.Tool
func (t *RecommendTool) Spec() tool.Spec {
	return tool.Spec{
		Name:        "recommend_places",
		Capability:  tool.CapabilityMaps,
		Description: "Recommend the best places for a query and location, ranked by rating weighted by review volume.",
		Schema: mapsSchema(map[string]tool.SchemaProperty{
			"min_rating": {Type: "number", Description: "Only recommend places rated at least this (0-5).", Minimum: tool.Float(0), Maximum: tool.Float(5)},
			"num":        {Type: "integer", Description: "Number of places to recommend (default 5).", Minimum: tool.Float(1), Maximum: tool.Float(20), Default: recommendDefaultNum},
		}),
	}
}

// Execute 实现 tool.Tool
func (t *RecommendTool) Execute(ctx context.Context, args map[string]any) (tool.Output, error) {
	num := tool.Int(args, "num", recommendDefaultNum)
	fetch := tool.CloneArgs(args)
	fetch["num"] = 20
	places, err := searchPlaces(ctx, t.serper, "recommend_places", fetch)
	if err != nil {
		return tool.Output{}, err
	}
	minRating, _ := tool.AsFloat(args["min_rating"])
	ranked := RankPlaces(places, minRating)
	if len(ranked) > num {
		ranked = ranked[:num]
	}
	out := tool.Output{Items: make([]tool.Item, 0, len(ranked))}
	for _, p := range ranked {
		it := p.item()
		it.Fields["score"] = math.Round(placeScore(p)*100) / 100
		out.Items = append(out.Items, it)
	}
	return out, nil
}

// RankPlaces 过滤低于 minRating 的地点并按得分降序排列（稳定排序）
func RankPlaces(places []Place, minRating float64) []Place {
	out := make([]Place, 0, len(places))
	for _, p := range places {
		if p.Rating >= minRating {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return placeScore(out[i]) > placeScore(out[j]) })
	return out
}

// placeScore 评分 × log10(评论数+10)，评论少的高分店不至于压过评论多的
func placeScore(p Place) float64 {
	return p.Rating * math.Log10(float64(p.Reviews)+10)
}
