// Package page manages open pages (tabs) and their navigation.
//
// Every page belongs to one container and loads through that container's
// session, so it inherits the container's routing, cookie partition and
// request policy. Loads publish loading and tab:state events; responses a
// page cannot display are handed to the download manager.
package page
