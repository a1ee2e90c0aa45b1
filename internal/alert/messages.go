package alert

import (
	"fmt"
	"math"
	"strings"

	"github.com/lox/barowatch/internal/pressure"
)

const subjectPrefix = "[P-Alert]"

const closing = "体調に気をつけて、無理せずお過ごしください。"

// Message is a rendered alert email.
type Message struct {
	Subject string
	Body    string
}

func (d Direction) label() string {
	if d == DirectionRising {
		return "上昇"
	}
	return "下降"
}

func dailyRangeMessage(today day, threshold float64) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "日付: %s\n", today.date)
	fmt.Fprintf(&b, "最高: %.1f hPa\n", today.rng.MaxHPa)
	fmt.Fprintf(&b, "最低: %.1f hPa\n", today.rng.MinHPa)
	fmt.Fprintf(&b, "変動幅: %.1f hPa\n\n", today.rng.RangeHPa)
	fmt.Fprintf(&b, "判定: 1日の変動幅が %.1fhPa 以上です。\n", threshold)
	b.WriteString(closing)
	return Message{
		Subject: fmt.Sprintf("%s 今日の気圧変動 %.1fhPa", subjectPrefix, today.rng.RangeHPa),
		Body:    b.String(),
	}
}

func dailyDeltaMessage(today day, yesterdayHPa, delta float64, dir Direction, threshold float64) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "計測時刻（採用データ）: %s\n", today.observedAt)
	fmt.Fprintf(&b, "今日: %.1f hPa\n", today.pressureHPa)
	fmt.Fprintf(&b, "昨日: %.1f hPa\n", yesterdayHPa)
	fmt.Fprintf(&b, "前日比: %+.1f hPa\n\n", delta)
	fmt.Fprintf(&b, "判定: ±%.1fhPa を超えました。\n", threshold)
	b.WriteString(closing)
	return Message{
		Subject: fmt.Sprintf("%s 気圧変化 %s %.1fhPa（前日比）", subjectPrefix, dir.label(), math.Abs(delta)),
		Body:    b.String(),
	}
}

func tomorrowRiskMessage(tomorrow string, w pressure.DangerWindow, risk pressure.Risk) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "明日（%s）の気圧予報で大きな低下が見込まれます。\n\n", tomorrow)
	fmt.Fprintf(&b, "リスク: %s\n", risk.Label())
	fmt.Fprintf(&b, "危険時間帯: %s 〜 %s\n", w.Start, w.End)
	fmt.Fprintf(&b, "3時間の変化: %+.1f hPa\n\n", w.DeltaHPa)
	b.WriteString("早めの休息や服薬の準備をおすすめします。\n")
	b.WriteString(closing)
	return Message{
		Subject: fmt.Sprintf("%s 明日の気圧リスク: %s", subjectPrefix, risk.Label()),
		Body:    b.String(),
	}
}

func forecastSwingMessage(hours int, step float64, at string, threshold float64) Message {
	var b strings.Builder
	b.WriteString("こんにちは、P-Alertです。\n\n")
	fmt.Fprintf(&b, "今後%d時間の予報で、気圧の変化が大きい可能性があります。\n", hours)
	fmt.Fprintf(&b, "最大差分（連続時間の差）: %.1f hPa（%s）\n", step, at)
	fmt.Fprintf(&b, "設定閾値: %.1f hPa\n\n", threshold)
	b.WriteString("無理せず、休憩や水分補給を。\n")
	return Message{
		Subject: subjectPrefix + " 気圧変化が大きい予報です",
		Body:    b.String(),
	}
}
