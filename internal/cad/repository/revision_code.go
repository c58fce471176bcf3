package repository

import "strings"

// FirstRevisionCode 设计的第一个修订号
const FirstRevisionCode = "A"

// NextRevisionCode 根据按创建顺序排列的已有修订号计算下一个修订号
// 纯函数：相同输入总是得到相同结果
func NextRevisionCode(existing []string) string {
	if len(existing) == 0 {
		return FirstRevisionCode
	}
	return IncrementRevisionCode(existing[len(existing)-1])
}

// IncrementRevisionCode 字母修订号进位加一：A->B, Z->AA, AZ->BA, ZZ->AAA
// 输入不区分大小写，输出为大写
func IncrementRevisionCode(code string) string {
	chars := []byte(strings.ToUpper(strings.TrimSpace(code)))
	if len(chars) == 0 {
		return FirstRevisionCode
	}
	i := len(chars) - 1
	for ; i >= 0; i-- {
		if chars[i] != 'Z' {
			chars[i]++
			return string(chars)
		}
		chars[i] = 'A'
	}
	return "A" + string(chars)
}
