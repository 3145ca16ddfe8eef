// Package minutes turns a meeting transcript into structured minutes
// through one of two closed provider variants, OpenAI or Gemini.
package minutes
