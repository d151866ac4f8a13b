package chunker

import "strings"

// block 是按键累积出的一组连续行。key 为空表示出现在第一个键之前的前言。
type block struct {
	key   string
	lines []string
}

func (b block) text() string {
	return strings.Join(b.lines, "\n")
}

// accumulate 遇到新键时开始新块，块内容超过 maxSize 时以相同键另起一块。
// keyOf 返回该行携带的键；同一键连续出现视为同一块的延续。
func accumulate(lines []string, keyOf func(string) (string, bool), maxSize int) []block {
	var (
		blocks  []block
		current block
		size    int
		started bool
	)
	flush := func() {
		if len(current.lines) > 0 {
			blocks = append(blocks, current)
		}
	}
	for _, line := range lines {
		key, ok := keyOf(line)
		if ok && (!started || key != current.key) {
			flush()
			current = block{key: key}
			size = 0
			started = true
		}
		n := runeLen(line)
		if size > 0 && size+1+n > maxSize {
			flush()
			current = block{key: current.key}
			size = 0
		}
		current.lines = append(current.lines, line)
		if size > 0 {
			size++
		}
		size += n
	}
	flush()
	return blocks
}
