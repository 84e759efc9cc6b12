// Package gateway はAPI Gatewayサービスの内部実装を提供する。
//
// デモログインによるJWT発行と、各サービスへのリクエスト転送を担当する。
// 外部からアクセス可能な唯一のサービスであり、転送前にトークンを検証する。
package gateway
