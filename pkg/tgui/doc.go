// Package tgui provides small Telegram UI helpers:
//   - Inline keyboard builders
//   - Callback data helpers ("action:payload")
//   - A message builder that is safe for ParseMode="HTML" (auto escaping)
package tgui
