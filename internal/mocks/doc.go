// Package mocks provides shared test doubles for the triage packages.
//
// # Usage
//
//	import "bugtriage/internal/mocks"
//
//	func TestSomething(t *testing.T) {
//	    dm := mocks.NewScriptedDecider(
//	        mocks.CallTools(mocks.Search("ticket_search", "login failure")),
//	        mocks.Say("Found existing ticket CSE-1, no new ticket needed."),
//	    )
//	    // Pass dm to triage.New...
//	}
//
// # Available Mocks
//
//   - MockLLMClient: Mock for the pkg/agent/llm.LLMClient interface
//   - ScriptedDecider: replays a fixed list of Decision-Maker replies
//   - PolicyDecider: a rule-following Decision-Maker that obeys the control-loop directives
package mocks
