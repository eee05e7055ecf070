package capture

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"takanome/internal/registry"
)

// LightsController は格納庫照明の点灯を制御する
//
// 点灯は撮影前のベストエフォートの副作用であり、
// いかなる失敗もリクエストの成否には影響しない。
type LightsController struct {
	client *resty.Client

	// sleep は安定待ちの実装。テストで差し替える
	sleep func(time.Duration)
}

// NewLightsController は新しいLightsControllerを作成する
func NewLightsController() *LightsController {
	client := resty.New()
	client.SetTimeout(10 * time.Second)

	return &LightsController{
		client: client,
		sleep:  time.Sleep,
	}
}

// TurnOn は格納庫の照明を点灯し、安定するまで待つ
//
// 照明制御が無効または未設定の場合は何もせずfalseを返す。
// HTTPエラーや失敗応答もfalseを返すだけで、撮影はそのまま続行される。
// 成功時は格納庫ごとの安定待ち時間だけ待ってからtrueを返す。
func (l *LightsController) TurnOn(ctx context.Context, hangar *registry.Hangar) bool {
	lights := hangar.Lights
	if !lights.Enabled || lights.URL == "" {
		return false
	}

	resp, err := l.client.R().
		SetContext(ctx).
		SetBasicAuth(lights.Username, lights.Password).
		SetBody(map[string]string{"state": "on"}).
		Post(lights.URL)
	if err != nil {
		log.Printf("格納庫 %s の照明点灯リクエストに失敗: %v", hangar.ID, err)
		return false
	}

	if !lightsResponseOK(resp) {
		log.Printf("格納庫 %s の照明点灯が拒否されました: status=%d body=%s",
			hangar.ID, resp.StatusCode(), resp.String())
		return false
	}

	// 照度が安定するまで待つ
	l.sleep(lights.SettleDuration())
	return true
}

// lightsResponseOK は照明制御エンドポイントの応答を成功と見なせるか判定する
// HTTP 200、またはその他の2xxで本文に肯定トークンが含まれていれば成功。
// 2xx以外は本文に関わらず失敗とする
func lightsResponseOK(resp *resty.Response) bool {
	code := resp.StatusCode()
	if code == 200 {
		return true
	}
	if code < 200 || code > 299 {
		return false
	}

	// トークン単位で比較する。部分一致だと
	// "connection refused" のような失敗文言まで拾ってしまう
	for _, token := range strings.Fields(strings.ToLower(resp.String())) {
		token = strings.Trim(token, ".,:;!\"'")
		if token == "ok" || token == "on" {
			return true
		}
	}
	return false
}
