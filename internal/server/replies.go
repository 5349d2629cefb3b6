// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import "strings"

// cannedReply is a keyword-triggered mock answer.
type cannedReply struct {
	trigger string
	text    string
}

var cannedReplies = []cannedReply{
	{
		trigger: "안녕",
		text:    "안녕하세요! **chatgate** 목 서버입니다. 😊\n\n" +
			"다음과 같은 주제로 질문해 보세요:\n\n- 날씨\n- 코딩\n- Go",
	},
	{
		trigger: "날씨",
		text:    "## 날씨 안내\n\n저는 *실시간 날씨 정보*에 접근할 수 없습니다.\n\n" +
			"> 공식 기상청 앱을 이용하시는 것을 추천드립니다.",
	},
	{
		trigger: "코딩",
		text:    "# 프로그래밍\n\n| 언어 | 용도 |\n|------|------|\n| Go | 서버, CLI |\n| TypeScript | 웹 |\n",
	},
	{
		trigger: "go",
		text:    "Go handles concurrency with goroutines and channels:\n\n" +
			"```go\nch := make(chan string)\ngo func() { ch <- \"hello\" }()\nfmt.Println(<-ch)\n```\n",
	},
}

const defaultReply = "흥미로운 질문이네요! 🤔\n\n조금 더 구체적으로 알려주시면 더 도움이 될 수 있습니다. 💡"

const imageOnlyReply = "흥미로운 이미지네요! 이미지에 대해 자세히 설명해 주시면 더 도움이 될 수 있을 것 같습니다."

// findReply matches message case-insensitively against the canned triggers.
func findReply(message string) string {
	lower := strings.ToLower(message)
	for _, r := range cannedReplies {
		if strings.Contains(lower, strings.ToLower(r.trigger)) {
			return r.text
		}
	}
	return defaultReply
}

// replyFor picks the reply for a send, accounting for an attached image.
func replyFor(message string, hasImage bool) string {
	switch {
	case hasImage && strings.TrimSpace(message) == "":
		return imageOnlyReply
	case hasImage:
		return "이미지와 함께 보내주신 메시지를 잘 받았습니다. " + findReply(message)
	default:
		return findReply(message)
	}
}
