package utils

import (
	"github.com/abadojack/whatlanggo"
)

var whatLangOpts = whatlanggo.Options{
	Whitelist: map[whatlanggo.Lang]bool{
		whatlanggo.Eng: true,
		whatlanggo.Cmn: true,
		whatlanggo.Fra: true,
		whatlanggo.Rus: true,
	},
}

func WhatLang(query string) whatlanggo.Lang {
	info := whatlanggo.DetectWithOptions(query, whatLangOpts)
	return info.Lang
}

// LangToFTSConfig 根据查询语言挑选 Postgres 全文检索配置。
// 表达式索引按 simple 建立，仅英文查询切换词干化配置。
func LangToFTSConfig(query string) string {
	switch WhatLang(query) {
	case whatlanggo.Eng:
		return "english"
	default:
		return "simple"
	}
}
