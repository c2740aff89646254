// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

package sentiment

// Built-in polarity and emotion marker sets, Russian first with a small
// English tail for mixed-language posts. Entries are matched against
// normalized lowercase tokens.

var positiveWords = wordSet(
	"хорошо", "отлично", "прекрасно", "замечательно", "великолепно",
	"поздравляем", "поздравляю", "победа", "победитель", "успех",
	"успешно", "радость", "радостно", "праздник", "любовь", "любим",
	"спасибо", "благодарим", "благодарность", "гордимся", "гордость",
	"лучший", "лучшие", "добро", "добрый", "счастье", "счастливый",
	"улыбка", "молодцы", "браво", "ура", "восторг", "чудесно",
	"талант", "талантливый", "награда", "наградили", "достижение",
	"рекорд", "юбилей", "открытие", "новоселье",
	"good", "great", "excellent", "wonderful", "amazing", "love",
	"happy", "congratulations", "win", "success", "best",
)

var negativeWords = wordSet(
	"плохо", "ужасно", "кошмар", "трагедия", "трагический", "беда",
	"авария", "дтп", "пожар", "погиб", "погибли", "смерть", "умер",
	"умерла", "катастрофа", "разрушение", "разрушен", "пострадал",
	"пострадали", "ранен", "ранены", "жертва", "жертвы", "преступление",
	"кража", "украли", "мошенники", "мошенничество", "обман", "скандал",
	"проблема", "проблемы", "жалоба", "жалобы", "грязь", "мусор",
	"свалка", "прорыв", "отключение", "отключили", "задержан",
	"задержали", "штраф", "эпидемия", "болезнь", "страшно", "опасно",
	"опасность", "угроза", "конфликт", "драка",
	"bad", "terrible", "horrible", "awful", "crash", "death", "dead",
	"fire", "accident", "crime", "danger", "threat",
)

var neutralWords = wordSet(
	"сообщает", "сообщается", "информация", "информирует", "уведомление",
	"объявление", "расписание", "график", "режим", "порядок", "итоги",
	"отчет", "отчёт", "заседание", "совещание", "встреча", "планируется",
	"состоится", "прошло", "прошла", "проведено", "проведена",
	"announcement", "report", "schedule", "meeting", "update", "notice",
)

var joyWords = wordSet(
	"радость", "радостно", "счастье", "счастливый", "праздник", "веселье",
	"весело", "улыбка", "смех", "восторг", "ура", "ликование",
	"joy", "happy", "fun", "celebrate", "smile", "laugh",
)

var sadnessWords = wordSet(
	"грусть", "грустно", "печаль", "печально", "скорбь", "скорбим",
	"утрата", "слезы", "слёзы", "тоска", "соболезнования", "прощание",
	"sad", "sadness", "grief", "sorrow", "mourning", "loss",
)

var angerWords = wordSet(
	"злость", "гнев", "возмущение", "возмущены", "возмутительно",
	"позор", "наглость", "безобразие", "хамство", "ярость",
	"anger", "angry", "outrage", "furious", "disgrace",
)

var fearWords = wordSet(
	"страх", "страшно", "боимся", "боятся", "паника", "тревога",
	"опасно", "опасность", "угроза", "ужас", "пугает",
	"fear", "afraid", "scary", "panic", "threat", "terror",
)

func wordSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
