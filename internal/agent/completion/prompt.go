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

package completion

import (
	"fmt"
	"strings"

	"search-agent/internal/tool"
)

// PromptOptions 系统提示词参数
type PromptOptions struct {
	// ReferenceDate 非空时提示模型问题来自该时间点前后的历史数据集
	ReferenceDate string
}

// 工具显示名与使用指引；顺序即提示词中的编号顺序
var toolGuides = []struct {
	name    string
	display string
	guide   string
}{
	{"google_search", "Google Search", `Use this FIRST to find general information, facts, or candidate sources.
   - Pass a list of queries to search several phrasings at once.
   - Use 'tbs' to restrict results to a time range and 'page' to read further results.`},
	{"google_shopping", "Google Shopping", `Use this for product questions, price comparisons, or where to buy an item.
   - It supports pagination ('page') and result count ('num').
   - It does NOT support date filtering.`},
	{"google_maps_search", "Google Maps", `Use this for places, restaurants, cafes, attractions, or any location-based question.
   - Provide both the 'query' (what to look for) and the 'location' (where to look).
   - Returns name, address, rating, review count and coordinates.`},
	{"recommend_places", "Place Recommendations", `Use this when the user wants the BEST places for something in an area.
   - Results are ranked by rating weighted by review volume; use 'min_rating' to drop weak candidates.`},
	{"google_scholar", "Google Scholar", `Use this for academic papers, research articles, and citations.
   - Supports year filtering with 'year_low' and 'year_high'.
   - Returns titles, authors, publication info, citation counts, and PDF links.`},
	{"browse_website", "Website Browser", `Use this ONLY when:
   - The search snippet is cut off or insufficient.
   - You need to verify a specific detail found in a search result.
   - The result points to an article or reference page that likely contains the answer.
   - DO NOT browse if a snippet already contains the answer.
   - When browsing, read the WHOLE content, not just the first paragraph.`},
}

const answerFormatRules = `ANSWER FORMAT:
1. A brief explanation (1-3 sentences) that answers the question with context.
2. The most concise form of the answer wrapped in <answer></answer> tags, like a trivia card.

CONCISENESS (inside <answer> tags only):
- Names: last name only if sufficient (e.g. "Ledger" not "Heath Ledger").
- Dates: "December 1985" or "8 December 2010" (no commas).
- Locations: the core name only (e.g. "New Orleans" not "New Orleans, Louisiana").
- Teams: the primary name only (e.g. "South Carolina").
- Choose ONE answer, not several.

EXAMPLES:

Q: Who played the Joker in The Dark Knight?
A: The Joker in The Dark Knight was played by Heath Ledger. <answer>Ledger</answer>

Q: When was SAARC formed?
A: SAARC was formed on 8 December 1985 in Dhaka, Bangladesh. <answer>8 December 1985</answer>

Q: Who is under the mask of Darth Vader?
A: Darth Vader is the masked identity of Anakin Skywalker. <answer>Anakin Skywalker</answer>
`

const answerStrategy = `SEARCH & ANSWER STRATEGY:
1. CHARACTER vs ACTOR: "who is under the mask" asks for the character, "who played" asks for the actor.
2. LISTS vs SPECIFIC ANSWERS: when specific examples are expected, answer with those instead of a complete list.
3. EPISODE / NUMBER questions: answer with the number that was asked for, not a plot summary.
4. Read several results and cross-reference sources before answering.
`

// SystemPrompt 按公布的工具集合生成系统提示词；无工具时只依赖内部知识
func SystemPrompt(tools []tool.Spec, opts PromptOptions) string {
	var b strings.Builder
	if len(tools) == 0 {
		b.WriteString("You are a helpful AI assistant.\n")
		b.WriteString("Answer the user's question accurately based on your internal knowledge.\n\n")
		writeReferenceDate(&b, opts.ReferenceDate)
		b.WriteString(answerFormatRules)
		return b.String()
	}

	enabled := make(map[string]bool, len(tools))
	for _, s := range tools {
		enabled[s.Name] = true
	}
	var names []string
	for _, g := range toolGuides {
		if enabled[g.name] {
			names = append(names, g.display)
		}
	}
	// 不在内置列表中的工具按名称出现
	for _, s := range tools {
		if !knownGuide(s.Name) {
			names = append(names, s.Name)
		}
	}

	fmt.Fprintf(&b, "You are a helpful AI assistant with access to %s for answering questions.\n\n", strings.Join(names, ", "))
	writeReferenceDate(&b, opts.ReferenceDate)

	b.WriteString("TOOL USAGE STRATEGY:\n")
	n := 0
	for _, g := range toolGuides {
		if !enabled[g.name] {
			continue
		}
		n++
		fmt.Fprintf(&b, "%d. **%s** (%s): %s\n", n, g.display, g.name, g.guide)
	}
	for _, s := range tools {
		if knownGuide(s.Name) {
			continue
		}
		n++
		fmt.Fprintf(&b, "%d. **%s**: %s\n", n, s.Name, s.Description)
	}
	b.WriteString("\nCall one tool at a time and wait for its result before deciding the next step.\n")
	b.WriteString("If a tool fails, reason about the failure and try a different query or tool.\n\n")
	b.WriteString(answerStrategy)
	b.WriteString("\n")
	b.WriteString(answerFormatRules)
	return b.String()
}

func writeReferenceDate(b *strings.Builder, date string) {
	if date == "" {
		return
	}
	fmt.Fprintf(b, `CRITICAL CONTEXT: these questions come from a HISTORICAL dataset (circa %s).
- "Last year" or "recently" refer to the time around %s, not today.
- When results show several candidate years, prefer the one matching that period.
- Ignore recent news unless the question explicitly asks for current information.

`, date, date)
}

func knownGuide(name string) bool {
	for _, g := range toolGuides {
		if g.name == name {
			return true
		}
	}
	return false
}

// finishInstruction 强制收尾时追加的指令
const finishInstruction = "You have run out of budget for further reasoning or tool calls. " +
	"Using only the evidence gathered so far, give your best final answer now. " +
	"Do not call any tools. End with the concise answer wrapped in <answer></answer> tags."

// continueInstruction 模型只给出推理、未给出动作时的追问
const continueInstruction = "Continue: call a tool if you need more information, " +
	"or give the final answer wrapped in <answer></answer> tags."
