// Package oracle implements the decision makers of parley agents.
//
// An Oracle looks at the Situation of an agent (its profile, the profiles of
// the other agents, the conversation so far and the capacity left in the
// window) and decides whether the agent should speak, what it should say, and
// how much capacity the utterance should consume.
//
// Scripted cycles through a fixed list of lines and is used in tests and
// demos. Anthropic asks a Claude model through the Messages API.
package oracle
