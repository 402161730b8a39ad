// Package mocks provides shared test doubles for the generation loop.
//
// # Usage
//
//	import "devagent/internal/mocks"
//
//	func TestSomething(t *testing.T) {
//	    client := mocks.NewMockLLMClient()
//	    client.RespondWithSequence(
//	        mocks.Step{Content: "def broken(:"},
//	        mocks.Step{Content: validCode},
//	    )
//	    session := mocks.NewFakeSession()
//	    session.OnScript = func(name, code string) mocks.FakeOutcome {
//	        return mocks.FakeOutcome{}
//	    }
//	    // Use client and session in test...
//	}
//
// # Available Mocks
//
//   - MockLLMClient: scripted llm.LLMClient that records every request
//   - FakeSession: in-memory host.Session whose outcomes are decided per artifact
package mocks
