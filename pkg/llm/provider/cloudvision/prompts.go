package cloudvision

const analyzeFramesPrompt = `Summarize what the user was doing across these screenshots in one or two sentences. Respond in Chinese.`

const segmentVideoPrompt = `These frames were sampled evenly across a %d minute recording window, timestamped MM:SS relative to the start of the window. Identify the coarse activity segments (distinct sustained activities) and respond with JSON only:
{"segments":[{"start":"MM:SS","end":"MM:SS","description":"..."}]}`

const generateTimelinePrompt = `Given these segments: %s

And %d prior cards from the preceding window for continuity, produce timeline cards. Each card's category must be exactly one of: work, communication, learning, personal, idle, other. Respond with JSON only:
{"cards":[{"start_time":"MM:SS","end_time":"MM:SS","category":"work","subcategory":"...","title":"...","summary":"...","detailed_summary":"...","distractions":"free text, one per line, optionally prefixed with (MM:SS-MM:SS)","primary_app":"...","secondary_apps":["..."]}]}`

const daySummaryPrompt = `Summarize the day %s given these sessions: %s

Respond in Chinese with a short narrative paragraph.`
