package config

// DefaultFile is written when no config file exists yet.
const DefaultFile = `# Voice sent with every synthesis request
voice:
  languageCode: "en-US"
  voiceName: "en-US-Chirp3-HD-Enceladus"
  # 0.25 to 4.0
  speakingRate: 0.95
  sampleRate: 24000

# Text segmentation
segment:
  # byte budget of one synthesis request
  maxChunkBytes: 4500
  # longer sentences are broken at commas, semicolons and the like
  maxSentenceBytes: 1000
  # strip markdown syntax before narrating
  markdown: false

# Retries of failed synthesis calls
retry:
  maxAttempts: 5
  baseBackoffSeconds: 2
  backoffMultiplier: 2
  retryableStatusCodes: [429, 500, 502, 503, 504]
  # how often a too-long chunk may be halved and retried
  maxRecursionDepth: 3
  # retry transient failures forever instead of giving up
  waitForRecovery: false
  recoveryIntervalSeconds: 30

# Joining chunk audio
assembly:
  interChunkSilenceMs: 300
  fadeDurationMs: 3000
  trailingSilenceMs: 2000

# Synthesis service
service:
  baseURL: "https://texttospeech.googleapis.com"
  requestTimeoutSeconds: 90
  probeTimeoutSeconds: 15
  # synthesis calls in flight per credential
  concurrency: 4
  # 0 disables client-side rate limiting
  requestsPerMinute: 300

# Synthesized audio cache, keyed by credential, voice and text
cache:
  enabled: true
  # defaults to the user cache directory
  dir: ""
  memoryMB: 64
  diskMB: 1024
  ttlDays: 7

output:
  dir: "."
  name: "narration"

# Subtitles. The command is run with --audio and --language appended and
# must print {"segments":[{"start":0.0,"end":1.2,"text":"..."}]}.
transcribe:
  command: ""
  language: "en"

# API keys are better kept in NARRATE_API_KEYS or NARRATE_API_KEYS_FILE.
# apiKeys: []
`
