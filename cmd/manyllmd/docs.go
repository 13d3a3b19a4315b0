package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           manyllmd API
// @version         1.0
// @description     HTTP API for catalog discovery, resumable downloads, integrity
// @description     verification and exclusive activation of local model artifacts.
//
// @contact.name   manyllmd maintainers
// @contact.url    https://github.com/your-org/manyllmd
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
