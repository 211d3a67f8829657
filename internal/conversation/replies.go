package conversation

import (
	"fmt"

	"github.com/wolfman30/thsr-fare-bot/internal/tdx"
)

const (
	replyOnboarding          = "嗨嗨！請輸入查詢高鐵，就可以開始查詢囉！"
	replyQueryMenu           = "[高鐵查詢]\n\n請選擇您想查詢的類型:\n1. 票價\n2. 車次"
	replyAskOrigin           = "請輸入您的起始站："
	replyScheduleUnavailable = "抱歉抱歉！目前車次查詢的功能還沒完成！\n如果要查詢票價請輸入1，或退出查詢請輸入3！"
	replyExited              = "已退出高鐵查詢囉！"
	replyInvalidQueryType    = "請輸入正確的查詢類型，或退出查詢請輸入3"
	replyOriginNotFound      = "抱歉，找不到您輸入的起始站，請重新輸入，或者要退出查詢請輸入3！"
	replyAskDestination      = "請輸入您的目的地站："
	replyDestinationNotFound = "找不到目的地站，請重新輸入："
	replyCabinMenu           = "請選擇您的車廂等級：\n1. 標準座車廂\n2. 商務座車廂\n3. 自由座車廂"
	replyInvalidCabin        = "請輸入正確的車廂等級"
	replyFareUnavailable     = "抱歉，目前查不到票價，請重新選擇車廂等級，或輸入退出結束查詢。"
)

func fareResultReply(origin, destination *tdx.Station, cabin tdx.CabinClass, price int) string {
	return fmt.Sprintf("[高鐵票價查詢結果]\n\n起始站：%s\n目的地站：%s\n車廂等級：%s\n\n票價為：%d",
		origin.DisplayName(), destination.DisplayName(), cabin.Label(), price)
}
