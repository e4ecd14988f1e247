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

package trajectory

import "search-agent/internal/tool"

const snippetChars = 500

// Step 每次工具调用的摘要，供评分脚本读取
type Step struct {
	StepNumber         int            `json:"step_number"`
	Action             string         `json:"action"`
	Query              any            `json:"query,omitempty"`
	URL                string         `json:"url,omitempty"`
	Args               map[string]any `json:"args,omitempty"`
	RetrievedDocuments []tool.Item    `json:"retrieved_documents,omitempty"`
	ContentSnippet     string         `json:"content_snippet,omitempty"`
	Error              *tool.Failure  `json:"error,omitempty"`
	Cached             bool           `json:"cached,omitempty"`
}

// Steps 从事件流派生工具调用摘要
func (t *Trajectory) Steps() []Step {
	calls := t.ToolCalls()
	steps := make([]Step, 0, len(calls))
	for i, rec := range calls {
		s := Step{StepNumber: i + 1, Action: rec.Call.Tool, Args: rec.Call.Args}
		if q, ok := rec.Call.Args["query"]; ok {
			s.Query = q
		}
		if u, ok := rec.Call.Args["url"].(string); ok {
			s.URL = u
		}
		if r := rec.Result; r != nil {
			s.Cached = r.Cached
			switch {
			case r.Failure != nil:
				s.Error = r.Failure
			case r.Output != nil && r.Output.Text != "":
				s.ContentSnippet = tool.Truncate(r.Output.Text, snippetChars)
			case r.Output != nil:
				s.RetrievedDocuments = r.Output.Items
			}
		}
		steps = append(steps, s)
	}
	return steps
}
