package config

// Template is written to a fresh narrator.yml.
const Template = `# narrator configuration

audio:
  # output sample rate when the engine does not report one
  sample_rate: 24000
  # samples per device write; pause/stop react at block boundaries
  block_size: 1024
  # synthesized segments buffered ahead of playback
  buffer_segments: 4
  # 0.0 mutes, 1.0 is unchanged, up to 2.0
  volume: 1.0
  # play into memory instead of the audio device
  mock: false

synth:
  # piper, exec or tone
  engine: "piper"
  voice: ""
  speed: 1.0
  timeout: "30s"
  piper:
    binary: "piper"
    model: "~/.local/share/piper/en_US-lessac-medium.onnx"
    # config: "~/.local/share/piper/en_US-lessac-medium.onnx.json"
    # speaker: "0"
  exec:
    # command reading a JSON request on stdin and writing JSON lines
    # command: "python3 ~/bin/kokoro-serve.py --lang en"
    command: ""
  tone:
    frequency: 440
    ms_per_char: 65

cache:
  enabled: true
  # dir: "~/.cache/narrator/segments"
  memory_mb: 64
  disk_mb: 512
  compression_level: 3

server:
  host: "127.0.0.1"
  port: 8765
  # requests per second; 0 disables limiting
  rate_limit: 20
  burst: 40
  max_text_length: 100000

queue:
  poll_interval: "100ms"

# state:
#   path: "~/.local/share/narrator/state.json"

telemetry:
  enabled: false

reader:
  ms_per_char: 65
  refresh: "100ms"
`
