// Package httpclient はサービス間のHTTP通信を行うクライアントを提供する。
//
// Event Storeへの変更イベントの追記、スタッフ名簿の参照など、
// サービス間の呼び出しはすべてこのクライアントを経由する。
package httpclient
