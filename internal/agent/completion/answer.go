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
	"regexp"
	"strings"
)

var answerTag = regexp.MustCompile(`(?s)<answer>(.*?)</answer>`)

// HasAnswer 文本中是否包含 <answer> 标签
func HasAnswer(text string) bool {
	return answerTag.MatchString(text)
}

// ExtractAnswer 取最后一个 <answer> 标签内的文本；没有标签时返回去空白的原文
func ExtractAnswer(text string) string {
	m := answerTag.FindAllStringSubmatch(text, -1)
	if len(m) == 0 {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(m[len(m)-1][1])
}
